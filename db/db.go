// Database Management
//
// Copyright (c) 2023, 2024  Philip Kaludercic
//
// This file is part of go-pig.
//
// go-pig is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License,
// version 3, as published by the Free Software Foundation.
//
// go-pig is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the GNU
// Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public
// License, version 3, along with go-pig. If not, see
// <http://www.gnu.org/licenses/>

package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"log"
	"path"
	"strings"
	"time"

	pig "go-pig"
	"go-pig/cmd"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed *.sql
var sql_dir embed.FS

type db struct {
	// The database connections
	read  *sql.DB
	write *sql.DB

	// The SQL queries are stored as *.sql files next to this
	// file and loaded when the manager is registered.  QUERIES
	// are handled by READ, COMMANDS by WRITE.
	queries  map[string]*sql.Stmt
	commands map[string]*sql.Stmt
}

func (db *db) SaveBot(ctx context.Context, u *pig.User) error {
	_, err := db.commands["insert-bot"].ExecContext(ctx,
		u.Id, u.Name, u.Descr, u.Hash, u.Path)
	return err
}

func (db *db) scanBot(scan func(...interface{}) error) (*pig.User, error) {
	var (
		u       pig.User
		descr   sql.NullString
		created sql.NullTime
	)
	err := scan(&u.Id, &u.Name, &descr, &u.Hash, &u.Path, &created)
	if err != nil {
		return nil, err
	}
	u.Descr = descr.String
	if created.Valid {
		u.Created = created.Time.Format(time.DateTime)
	}
	return &u, nil
}

func (db *db) QueryBot(ctx context.Context, id string) *pig.User {
	row := db.queries["select-bot"].QueryRowContext(ctx, id)
	u, err := db.scanBot(row.Scan)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Print(err)
		}
		return nil
	}
	return u
}

func (db *db) QueryBotHash(ctx context.Context, hash string) *pig.User {
	row := db.queries["select-bot-hash"].QueryRowContext(ctx, hash)
	u, err := db.scanBot(row.Scan)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Print(err)
		}
		return nil
	}
	return u
}

func (db *db) QueryBots(ctx context.Context, c chan<- *pig.User) {
	defer close(c)
	rows, err := db.queries["select-bots"].QueryContext(ctx)
	if err != nil {
		log.Print(err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		u, err := db.scanBot(rows.Scan)
		if err != nil {
			log.Print(err)
			return
		}
		c <- u
	}
	if err = rows.Err(); err != nil {
		log.Print(err)
	}
}

func (db *db) SaveJob(ctx context.Context, j *pig.Job) {
	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		log.Print(err)
		return
	}

	_, err = tx.Stmt(db.commands["insert-simulation"]).ExecContext(ctx,
		j.Id, j.Status().String(), j.Games)
	if err != nil {
		log.Print(err)
		if err = tx.Rollback(); err != nil {
			log.Print(err)
		}
		return
	}
	for i, u := range j.Users {
		_, err = tx.Stmt(db.commands["insert-participant"]).ExecContext(ctx,
			j.Id, u.Id, i)
		if err != nil {
			log.Print(err)
			if err = tx.Rollback(); err != nil {
				log.Print(err)
			}
			return
		}
	}

	if err = tx.Commit(); err != nil {
		log.Print(err)
	}
}

func (db *db) UpdateJob(ctx context.Context, j *pig.Job) {
	_, err := db.commands["update-simulation"].ExecContext(ctx,
		j.Status().String(), j.Reason(), j.Id)
	if err != nil {
		log.Print(err)
	}
}

func (db *db) UpdateProgress(ctx context.Context, j *pig.Job) {
	_, err := db.commands["update-progress"].ExecContext(ctx,
		j.Completed(), j.Id)
	if err != nil {
		log.Print(err)
	}
}

func (db *db) SaveResults(ctx context.Context, j *pig.Job) {
	results := j.Results()
	if results == nil {
		return
	}

	tx, err := db.write.BeginTx(ctx, nil)
	if err != nil {
		log.Print(err)
		return
	}
	for i, r := range results {
		_, err = tx.Stmt(db.commands["update-participant"]).ExecContext(ctx,
			r.Wins, r.Money, r.Peak, r.Disqualified, j.Id, i)
		if err != nil {
			log.Print(err)
			if err = tx.Rollback(); err != nil {
				log.Print(err)
			}
			return
		}
	}
	if err = tx.Commit(); err != nil {
		log.Print(err)
	}
}

func (db *db) QueryJob(ctx context.Context, id string) *pig.Job {
	var (
		status, reason   sql.NullString
		games, completed uint32
	)
	err := db.queries["select-simulation"].QueryRowContext(ctx, id).Scan(
		&status, &games, &completed, &reason)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Print(err)
		}
		return nil
	}

	st, err := pig.ParseStatus(status.String)
	if err != nil {
		log.Print(err)
		return nil
	}

	rows, err := db.queries["select-participants"].QueryContext(ctx, id)
	if err != nil {
		log.Print(err)
		return nil
	}
	defer rows.Close()

	var (
		users   []*pig.User
		results []pig.Result
	)
	for rows.Next() {
		var (
			idx   int
			r     pig.Result
			u     pig.User
			descr sql.NullString
		)
		err = rows.Scan(&idx, &r.Wins, &r.Money, &r.Peak, &r.Disqualified,
			&u.Id, &u.Name, &descr, &u.Hash, &u.Path)
		if err != nil {
			log.Print(err)
			return nil
		}
		u.Descr = descr.String
		if idx != len(users) {
			log.Printf("Gap in the participants of %s", id)
			return nil
		}
		users = append(users, &u)
		results = append(results, r)
	}
	if err = rows.Err(); err != nil {
		log.Print(err)
		return nil
	}

	// Only terminal jobs carry results.
	if st != pig.Completed && st != pig.Failed {
		results = nil
	}
	return pig.RestoreJob(id, users, games, completed, st, reason.String, results)
}

func (db *db) QueryJobs(ctx context.Context, c chan<- *pig.Job) {
	defer close(c)
	rows, err := db.queries["select-simulations"].QueryContext(ctx)
	if err != nil {
		log.Print(err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, status, reason sql.NullString
			games, completed   uint32
		)
		err = rows.Scan(&id, &status, &games, &completed, &reason)
		if err != nil {
			log.Print(err)
			return
		}
		st, err := pig.ParseStatus(status.String)
		if err != nil {
			log.Print(err)
			return
		}
		c <- pig.RestoreJob(id.String, nil, games, completed,
			st, reason.String, nil)
	}
	if err = rows.Err(); err != nil {
		log.Print(err)
	}
}

func (db *db) Start(*cmd.State, *cmd.Conf) {}

func (db *db) Shutdown() {
	if err := db.write.Close(); err != nil {
		log.Print(err)
	}
	if err := db.read.Close(); err != nil {
		log.Print(err)
	}
}

func (*db) String() string { return "Database Manager" }

// Initialise the database and the database manager
func Register(st *cmd.State, conf *cmd.Conf) {
	read, err := sql.Open("sqlite3", conf.Database.File)
	if err != nil {
		log.Fatal(err, ": ", conf.Database.File)
	}
	read.SetConnMaxLifetime(0)
	read.SetMaxIdleConns(1)

	write, err := sql.Open("sqlite3", conf.Database.File)
	if err != nil {
		log.Fatal(err, ": ", conf.Database.File)
	}
	write.SetConnMaxLifetime(0)
	write.SetMaxIdleConns(1)
	write.SetMaxOpenConns(1)

	db := &db{
		queries:  make(map[string]*sql.Stmt),
		commands: make(map[string]*sql.Stmt),
		write:    write,
		read:     read,
	}

	for _, pragma := range []string{
		// https://www.sqlite.org/pragma.html#pragma_journal_mode
		"journal_mode = WAL",
		// https://www.sqlite.org/pragma.html#pragma_synchronous
		"synchronous = normal",
		// https://www.sqlite.org/pragma.html#pragma_temp_store
		"temp_store = memory",
		// https://www.sqlite.org/pragma.html#pragma_foreign_keys
		"foreign_keys = on",
	} {
		pig.Debug.Printf("Run PRAGMA %v", pragma)
		_, err = db.write.Exec("PRAGMA " + pragma + ";")
		if err != nil {
			log.Fatal(err)
		}
	}

	entries, err := sql_dir.ReadDir(".")
	if err != nil {
		log.Fatal(err)
	}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		base := path.Base(entry.Name())
		data, err := fs.ReadFile(sql_dir, entry.Name())
		if err != nil {
			log.Fatal(err)
		}

		if strings.HasPrefix(base, "create-") {
			_, err = db.write.Exec(string(data))
			pig.Debug.Printf("Executed query %v", base)
		} else {
			query := strings.TrimSuffix(base, ".sql")
			if strings.HasPrefix(query, "select-") {
				db.queries[query], err = db.read.Prepare(string(data))
				pig.Debug.Printf("Registered query %v", query)
			} else {
				db.commands[query], err = db.write.Prepare(string(data))
				pig.Debug.Printf("Registered command %v", query)
			}
		}
		if err != nil {
			log.Fatal(entry.Name(), ": ", err)
		}
	}

	if len(db.queries) == 0 {
		panic("No queries loaded")
	}

	st.Register(cmd.Database(db))
}
