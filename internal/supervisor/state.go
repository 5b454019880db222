// internal/supervisor/state.go
package supervisor

import (
	"sort"
	"time"

	"github.com/sua-org/cam-timelapse/internal/core"
)

// ScheduleState é uma foto do estado do agendador.
type ScheduleState struct {
	CycleStart time.Time `json:"cycle_start"`
	InFlight   []string  `json:"in_flight"`
	Cancelled  bool      `json:"cancelled"`
}

func (s *Scheduler) trackStart(camera string) {
	s.mu.Lock()
	s.inFlight[camera] = time.Now()
	n := len(s.inFlight)
	s.mu.Unlock()
	s.metrics.SetInFlight(n)
}

func (s *Scheduler) trackDone(camera string) {
	s.mu.Lock()
	delete(s.inFlight, camera)
	n := len(s.inFlight)
	s.mu.Unlock()
	s.metrics.SetInFlight(n)
}

// InFlight lista as câmeras com busca em andamento, em ordem.
func (s *Scheduler) InFlight() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.inFlight))
	for cam := range s.inFlight {
		out = append(out, cam)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) State() ScheduleState {
	inFlight := s.InFlight()
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScheduleState{
		CycleStart: s.cycleStart,
		InFlight:   inFlight,
		Cancelled:  s.cancelled.Load(),
	}
}

// LastCycle devolve o último ciclo completo; ok=false antes do primeiro.
func (s *Scheduler) LastCycle() (last core.CycleResult, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return core.CycleResult{}, false
	}
	return *s.last, true
}
