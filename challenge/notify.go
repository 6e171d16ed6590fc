/*
notify.go - Participation-created notification hook

PURPOSE:
  The engine emits a snapshot of every created participation so external
  collaborators (engagement documents, welcome emails) can react. The hook
  is fire-and-forget: it cannot fail a join and the engine never waits on
  delivery. Actual delivery is out of scope for this core.
*/
package challenge

import (
	"context"
	"log"
)

// LogNotifier logs participation-created events. The default wiring in
// cmd/server; real deployments replace it with a queue or webhook producer.
type LogNotifier struct{}

func (LogNotifier) ParticipationCreated(_ context.Context, p Participation, c Challenge) {
	log.Printf("[Notify] participation created: user=%s challenge=%q target=%s %s",
		p.UserID, c.Title, p.TargetAmount.Value.String(), p.TargetAmount.Currency)
}
