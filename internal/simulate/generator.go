package simulate

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/okian/ascent/internal/domain/leveling"
)

// persona shapes how often a synthetic user acts.
type persona int

const (
	personaDaily    persona = iota // acts every day, several events
	personaSkipper                 // skips roughly one day in three
	personaSporadic                // acts roughly one day in three
	personaCount
)

// event is the wire shape submitted to POST /events.
type event struct {
	EventID string `json:"event_id"`
	UserID  string `json:"user_id"`
	Action  string `json:"action"`
	TS      string `json:"ts"`
}

// user is one synthetic subject with a fixed persona.
type user struct {
	id      string
	persona persona
}

func randomInt(n int64) int64 {
	v, _ := rand.Int(rand.Reader, big.NewInt(n))
	return v.Int64()
}

// generateUsers creates users with uuid identities and varied personas.
func generateUsers(count int) []user {
	users := make([]user, count)
	for i := range users {
		users[i] = user{
			id:      uuid.New().String(),
			persona: persona(randomInt(int64(personaCount))),
		}
	}
	return users
}

// actsOn decides whether the user is active on the given simulated day.
func (u user) actsOn(_ int) bool {
	switch u.persona {
	case personaDaily:
		return true
	case personaSkipper:
		return randomInt(3) != 0
	default:
		return randomInt(3) == 0
	}
}

// generateDay produces the user's events for one simulated day. Actions are
// drawn from the service's action table so every submission is valid.
func generateDay(u user, day time.Time, maxPerDay int) []event {
	actions := leveling.Actions()
	n := 1 + int(randomInt(int64(maxPerDay)))
	events := make([]event, 0, n)
	for i := 0; i < n; i++ {
		action := actions[randomInt(int64(len(actions)))]
		// Spread timestamps across the day's working hours.
		ts := day.Add(time.Duration(8+randomInt(12)) * time.Hour).
			Add(time.Duration(randomInt(60)) * time.Minute)
		events = append(events, event{
			EventID: uuid.New().String(),
			UserID:  u.id,
			Action:  action,
			TS:      ts.UTC().Format(time.RFC3339),
		})
	}
	return events
}
