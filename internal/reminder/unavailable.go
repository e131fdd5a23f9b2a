package reminder

import "dailyflow/internal/domain"

// Unavailable is the Arming used where reminders cannot be delivered, such
// as when reminders are switched off in configuration. Callers can tell it
// apart through Available.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }
func (Unavailable) Schedule(domain.Task) {}
func (Unavailable) Clear(string) {}
func (Unavailable) ScheduleAll([]domain.Task) {}
func (Unavailable) Revision() uint64 { return 0 }
func (Unavailable) Reload(uint64, []domain.Task) bool { return true }
func (Unavailable) ClearAll() {}
func (Unavailable) Pending() int { return 0 }
func (Unavailable) Entries() []Entry { return nil }

var (
	_ Arming = (*Scheduler)(nil)
	_ Arming = Unavailable{}
)
