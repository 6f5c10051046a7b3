package store

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/georgysavva/scany/v2/sqlscan"
	"github.com/haatos/cijoe/internal"
)

type BuildSQLiteStore struct {
	rdb, rwdb *sql.DB
}

func NewBuildSQLiteStore(rdb, rwdb *sql.DB) *BuildSQLiteStore {
	return &BuildSQLiteStore{rdb, rwdb}
}

type buildRow struct {
	Slot          Slot        `db:"slot"`
	ProjectPath   string      `db:"project_path"`
	Owner         string      `db:"owner"`
	Project       string      `db:"project"`
	Branch        string      `db:"branch"`
	SHA           string      `db:"sha"`
	Status        BuildStatus `db:"status"`
	Output        string      `db:"output"`
	PID           *int64      `db:"pid"`
	StartedOn     string      `db:"started_on"`
	FinishedOn    *string     `db:"finished_on"`
	CommitSHA     *string     `db:"commit_sha"`
	CommitAuthor  *string     `db:"commit_author"`
	CommitMessage *string     `db:"commit_message"`
}

func (store *BuildSQLiteStore) WriteBuild(ctx context.Context, slot Slot, b *Build) error {
	if b == nil {
		_, err := store.rwdb.ExecContext(ctx, "delete from builds where slot = $1", slot)
		return err
	}

	row := newBuildRow(slot, b)
	query := `insert into builds (
		slot,
		project_path,
		owner,
		project,
		branch,
		sha,
		status,
		output,
		pid,
		started_on,
		finished_on,
		commit_sha,
		commit_author,
		commit_message
	)
	values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	on conflict(slot) do update set
		project_path = excluded.project_path,
		owner = excluded.owner,
		project = excluded.project,
		branch = excluded.branch,
		sha = excluded.sha,
		status = excluded.status,
		output = excluded.output,
		pid = excluded.pid,
		started_on = excluded.started_on,
		finished_on = excluded.finished_on,
		commit_sha = excluded.commit_sha,
		commit_author = excluded.commit_author,
		commit_message = excluded.commit_message`
	_, err := store.rwdb.ExecContext(
		ctx, query,
		row.Slot,
		row.ProjectPath,
		row.Owner,
		row.Project,
		row.Branch,
		row.SHA,
		row.Status,
		row.Output,
		row.PID,
		row.StartedOn,
		row.FinishedOn,
		row.CommitSHA,
		row.CommitAuthor,
		row.CommitMessage,
	)
	return err
}

func (store *BuildSQLiteStore) ReadBuild(ctx context.Context, slot Slot) (*Build, error) {
	row := new(buildRow)
	query := `select
		slot,
		project_path,
		owner,
		project,
		branch,
		sha,
		status,
		output,
		pid,
		started_on,
		finished_on,
		commit_sha,
		commit_author,
		commit_message
	from builds where slot = $1`
	if err := sqlscan.Get(ctx, store.rdb, row, query, slot); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	b, err := row.build()
	if err != nil {
		log.Printf("err decoding %s build: %+v\n", slot, err)
		return nil, nil
	}
	return b, nil
}

func newBuildRow(slot Slot, b *Build) *buildRow {
	row := &buildRow{
		Slot:        slot,
		ProjectPath: b.ProjectPath,
		Owner:       b.User,
		Project:     b.Project,
		Branch:      b.Branch,
		SHA:         b.SHA,
		Status:      b.Status,
		Output:      b.Output,
		StartedOn:   b.StartedAt.Format(internal.DBTimestampLayout),
	}
	if b.PID != nil {
		pid := int64(*b.PID)
		row.PID = &pid
	}
	if b.FinishedAt != nil {
		finishedOn := b.FinishedAt.Format(internal.DBTimestampLayout)
		row.FinishedOn = &finishedOn
	}
	if b.Commit != nil {
		row.CommitSHA = &b.Commit.SHA
		row.CommitAuthor = &b.Commit.Author
		row.CommitMessage = &b.Commit.Message
	}
	return row
}

func (row *buildRow) build() (*Build, error) {
	startedAt, err := time.Parse(internal.DBTimestampLayout, row.StartedOn)
	if err != nil {
		return nil, err
	}
	b := &Build{
		ProjectPath: row.ProjectPath,
		User:        row.Owner,
		Project:     row.Project,
		StartedAt:   startedAt,
		Branch:      row.Branch,
		SHA:         row.SHA,
		Status:      row.Status,
		Output:      row.Output,
	}
	if row.FinishedOn != nil {
		finishedAt, err := time.Parse(internal.DBTimestampLayout, *row.FinishedOn)
		if err != nil {
			return nil, err
		}
		b.FinishedAt = &finishedAt
	}
	if row.PID != nil {
		pid := int(*row.PID)
		b.PID = &pid
	}
	if row.CommitSHA != nil {
		b.Commit = &Commit{SHA: *row.CommitSHA}
		if row.CommitAuthor != nil {
			b.Commit.Author = *row.CommitAuthor
		}
		if row.CommitMessage != nil {
			b.Commit.Message = *row.CommitMessage
		}
	}
	return b, nil
}
