package narrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Writer appends narration rows inside the caller's transaction. Entries are
// never updated or deleted; the log is the total order of business mutations
// on an event.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, eventID, actorID int64, c Comment) error {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	if c.Provenance != ProvenanceMachine && c.Provenance != ProvenanceHuman {
		return fmt.Errorf("narrate: invalid provenance %q", c.Provenance)
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO narration(event_id,ts,actor_id,provenance,body) VALUES (?,?,?,?,?)`,
		eventID, now().UTC().Format(time.RFC3339), actorID, c.Provenance, c.Body)
	if err != nil {
		return fmt.Errorf("append narration: %w", err)
	}
	return nil
}
