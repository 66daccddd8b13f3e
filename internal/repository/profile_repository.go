package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dubspace/dubspace-core/internal/domain"
)

// Allowed column names for partial profile updates.
var updatableColumns = map[string]struct{}{
	"is_vip":        {},
	"vip_expiry":    {},
	"tcoin_balance": {},
	"ai_usage":      {},
	"preferences":   {},
}

// ErrUnknownColumn indicates an UpdateFields call with a column outside the
// profile row contract.
var ErrUnknownColumn = errors.New("unknown profile column")

// ProfileRepository defines point reads and partial updates against the
// canonical per-account profile rows.
type ProfileRepository interface {
	FindByID(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error)
	Create(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error)
	UpdateFields(ctx context.Context, accountID string, fields map[string]any) (*domain.ProfileSnapshot, error)
}

type profileRepository struct {
	db  *sql.DB
	log *slog.Logger
}

// NewProfileRepository creates a new SQL-backed profile repository.
func NewProfileRepository(db *sql.DB, log *slog.Logger) ProfileRepository {
	return &profileRepository{
		db:  db,
		log: log,
	}
}

// FindByID retrieves the profile row for the given account. sql.ErrNoRows is
// surfaced unchanged for missing accounts.
func (r *profileRepository) FindByID(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	const query = `
		SELECT account_id, is_vip, vip_expiry, tcoin_balance, ai_usage, preferences
		FROM profiles
		WHERE account_id = $1
	`

	row := r.db.QueryRowContext(ctx, query, accountID)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to fetch profile", slog.String("account_id", accountID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("select profile: %w", err)
	}

	return snapshot, nil
}

// Create inserts an empty profile row for a new account.
func (r *profileRepository) Create(ctx context.Context, accountID string) (*domain.ProfileSnapshot, error) {
	const query = `
		INSERT INTO profiles (account_id, is_vip, tcoin_balance, ai_usage, preferences)
		VALUES ($1, FALSE, 0, 0, '{}'::jsonb)
		RETURNING account_id, is_vip, vip_expiry, tcoin_balance, ai_usage, preferences
	`

	row := r.db.QueryRowContext(ctx, query, accountID)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if r.log != nil {
			r.log.Error("failed to create profile", slog.String("account_id", accountID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("insert profile: %w", err)
	}

	return snapshot, nil
}

// UpdateFields applies a partial update and returns the fresh row. Column
// names outside the row contract are rejected before touching the database.
func (r *profileRepository) UpdateFields(ctx context.Context, accountID string, fields map[string]any) (*domain.ProfileSnapshot, error) {
	if len(fields) == 0 {
		return r.FindByID(ctx, accountID)
	}

	columns := make([]string, 0, len(fields))
	for column := range fields {
		if _, ok := updatableColumns[column]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownColumn, column)
		}
		columns = append(columns, column)
	}
	sort.Strings(columns)

	setClauses := make([]string, 0, len(columns))
	args := make([]any, 0, len(columns)+1)
	args = append(args, accountID)

	for i, column := range columns {
		value := fields[column]
		if column == "preferences" {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, fmt.Errorf("encode preferences: %w", err)
			}
			value = encoded
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, i+2))
		args = append(args, value)
	}

	query := fmt.Sprintf(`
		UPDATE profiles
		SET %s
		WHERE account_id = $1
		RETURNING account_id, is_vip, vip_expiry, tcoin_balance, ai_usage, preferences
	`, strings.Join(setClauses, ", "))

	row := r.db.QueryRowContext(ctx, query, args...)

	snapshot, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}

		if r.log != nil {
			r.log.Error("failed to update profile", slog.String("account_id", accountID), slog.Any("error", err))
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}

	return snapshot, nil
}

func scanSnapshot(row *sql.Row) (*domain.ProfileSnapshot, error) {
	var (
		snapshot  domain.ProfileSnapshot
		expiry    sql.NullTime
		prefsJSON []byte
	)

	if err := row.Scan(
		&snapshot.AccountID,
		&snapshot.IsVIP,
		&expiry,
		&snapshot.TCoinBalance,
		&snapshot.AIUsage,
		&prefsJSON,
	); err != nil {
		return nil, err
	}

	if expiry.Valid {
		t := expiry.Time
		snapshot.VIPExpiry = &t
	}

	if len(prefsJSON) > 0 && string(prefsJSON) != "{}" {
		var prefs domain.Preferences
		if err := json.Unmarshal(prefsJSON, &prefs); err != nil {
			return nil, fmt.Errorf("decode preferences: %w", err)
		}
		snapshot.Preferences = &prefs
	}

	snapshot.FetchedAt = time.Now().UTC()
	return &snapshot, nil
}
