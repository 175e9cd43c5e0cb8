// Package audit records security-relevant actions in the audit_logs table.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"openfeedback/internal/pkg/logger"
	"openfeedback/internal/platform/models"
)

const (
	ActionInstallationLinked   = "github.installation.linked"
	ActionInstallationUnlinked = "github.installation.unlinked"
	ActionInstallationCreated  = "github.installation.created"
	ActionInstallationDeleted  = "github.installation.deleted"

	ResourceInstallation = "github_installation"
)

// Logger writes audit rows in the background. Failures are logged and
// otherwise ignored.
type Logger struct {
	db  *sql.DB
	log zerolog.Logger
	wg  sync.WaitGroup
	now func() time.Time
}

func NewLogger(db *sql.DB) *Logger {
	return &Logger{db: db, log: logger.Component("audit"), now: time.Now}
}

func (l *Logger) Log(entry models.AuditLog) {
	if entry.ID == "" {
		entry.ID = "audit_" + uuid.NewString()
	}
	if entry.CreatedAt == 0 {
		entry.CreatedAt = l.now().Unix()
	}

	var metadata sql.NullString
	if len(entry.Metadata) > 0 {
		data, err := json.Marshal(entry.Metadata)
		if err != nil {
			l.log.Error().Err(err).Str("action", entry.Action).Msg("failed to encode audit metadata")
		} else {
			metadata = sql.NullString{String: string(data), Valid: true}
		}
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		query := `
			INSERT INTO audit_logs (id, team_id, user_id, action, resource_type, resource_id, metadata, ip_address, user_agent, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := l.db.ExecContext(ctx, query, entry.ID, entry.TeamID, entry.UserID, entry.Action,
			entry.ResourceType, entry.ResourceID, metadata, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
		if err != nil {
			l.log.Error().Err(err).
				Str("action", entry.Action).
				Str("team_id", entry.TeamID).
				Str("resource_id", entry.ResourceID).
				Msg("failed to write audit log")
		}
	}()
}

// Wait blocks until pending writes finish.
func (l *Logger) Wait() {
	l.wg.Wait()
}
