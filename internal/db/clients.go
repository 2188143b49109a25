package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/QQ7ita/littlenavmap/pkg/geo"
	"github.com/QQ7ita/littlenavmap/pkg/online"
	"github.com/QQ7ita/littlenavmap/pkg/whazzup"
)

// clientColumns is the select list shared by all client queries.
const clientColumns = `client_id, callsign, cid, name, client_type, frequency,
	laty, lonx, altitude_ft, groundspeed_kts, heading_deg,
	transponder, aircraft_type, departure, destination`

// ClientsByRect returns the clients inside a bounding box. The rectangle
// must not cross the antimeridian; callers split it beforehand.
func (db *DB) ClientsByRect(ctx context.Context, r geo.Rect) ([]online.Aircraft, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+clientColumns+`
		 FROM client
		 WHERE lonx BETWEEN $1 AND $2 AND laty BETWEEN $3 AND $4`,
		r.West, r.East, r.South, r.North,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query clients by rect: %w", err)
	}
	defer rows.Close()

	var aircraft []online.Aircraft
	for rows.Next() {
		ac, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		aircraft = append(aircraft, ac)
	}

	return aircraft, rows.Err()
}

// ClientByID returns a single client record or nil when not found.
func (db *DB) ClientByID(ctx context.Context, id int) (*online.Aircraft, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+clientColumns+` FROM client WHERE client_id = $1`, id)

	ac, err := scanClient(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ac, nil
}

// ClientCount returns the number of stored clients.
func (db *DB) ClientCount(ctx context.Context) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM client`).Scan(&count)
	return count, err
}

// Servers returns all stored servers.
func (db *DB) Servers(ctx context.Context) ([]whazzup.Server, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ident, hostname, location, name, clients_allowed FROM server ORDER BY ident`)
	if err != nil {
		return nil, fmt.Errorf("failed to query servers: %w", err)
	}
	defer rows.Close()

	var servers []whazzup.Server
	for rows.Next() {
		var s whazzup.Server
		if err := rows.Scan(&s.Ident, &s.Hostname, &s.Location, &s.Name, &s.ClientsAllowed); err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	return servers, rows.Err()
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanClient(s scanner) (online.Aircraft, error) {
	var ac online.Aircraft
	var cid, name, frequency, transponder, acType, departure, destination sql.NullString

	err := s.Scan(
		&ac.ID, &ac.Callsign, &cid, &name, &ac.ClientType, &frequency,
		&ac.Pos.Lat, &ac.Pos.Lon, &ac.Altitude, &ac.GroundSpeed, &ac.Heading,
		&transponder, &acType, &departure, &destination,
	)
	if err != nil {
		return online.Aircraft{}, err
	}

	// Online networks identify airframes by callsign.
	ac.Registration = ac.Callsign
	ac.CID = cid.String
	ac.Name = name.String
	ac.Frequency = frequency.String
	ac.Transponder = transponder.String
	ac.AircraftType = acType.String
	ac.Departure = departure.String
	ac.Destination = destination.String
	return ac, nil
}

// replaceClients swaps the full client table contents inside one
// transaction so queries never observe a half-loaded snapshot.
func (db *DB) replaceClients(ctx context.Context, clients []whazzup.Client, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM client`); err != nil {
		return fmt.Errorf("failed to clear clients: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO client (
			callsign, cid, name, client_type, frequency,
			laty, lonx, altitude_ft, groundspeed_kts, heading_deg,
			transponder, aircraft_type, departure, destination, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`)
	if err != nil {
		return fmt.Errorf("failed to prepare client insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range clients {
		_, err := stmt.ExecContext(ctx,
			c.Callsign, c.CID, c.Name, c.ClientType, c.Frequency,
			c.Pos.Lat, c.Pos.Lon, c.Altitude, c.GroundSpeed, c.Heading,
			c.Transponder, c.AircraftType, c.Departure, c.Destination, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert client %s: %w", c.Callsign, err)
		}
	}

	return tx.Commit()
}

// replaceServers swaps the full server table contents.
func (db *DB) replaceServers(ctx context.Context, servers []whazzup.Server, now time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM server`); err != nil {
		return fmt.Errorf("failed to clear servers: %w", err)
	}

	for _, s := range servers {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO server (ident, hostname, location, name, clients_allowed, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.Ident, s.Hostname, s.Location, s.Name, s.ClientsAllowed, now,
		)
		if err != nil {
			return fmt.Errorf("failed to insert server %s: %w", s.Ident, err)
		}
	}

	return tx.Commit()
}
