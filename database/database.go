/*
Package database uses SQLite to store observed seed/key exchanges and the
algorithm indices known to reproduce them, as an alternative to the XML
session logs written by the earlier C# based utilities.
*/
package database

import (
	"database/sql"
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bodgit/gmlan/ecu"

	// Database driver
	_ "github.com/mattn/go-sqlite3"
)

// Database holds the SQLite database handle
type Database struct {
	db *sql.DB
}

// New opens an existing catalog database or creates a new empty one
func New(file string) (*Database, error) {
	if file == "" {
		return nil, errors.New("no file")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS vehicle (id INTEGER PRIMARY KEY NOT NULL, name TEXT NOT NULL UNIQUE)"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS exchange (id INTEGER PRIMARY KEY NOT NULL, vehicle_id INTEGER NOT NULL, ecu INTEGER NOT NULL, seed INTEGER NOT NULL, key INTEGER NOT NULL, table_sha1 TEXT, FOREIGN KEY(vehicle_id) REFERENCES vehicle(id))"); err != nil {
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS match (exchange_id INTEGER NOT NULL, algorithm INTEGER NOT NULL, UNIQUE(exchange_id, algorithm), FOREIGN KEY(exchange_id) REFERENCES exchange(id))"); err != nil {
		return nil, err
	}

	return &Database{
		db: db,
	}, nil
}

// Close closes the database rendering it unusable
func (db *Database) Close() error {
	return db.db.Close()
}

// AddExchange records one observed seed/key exchange along with the
// algorithm indices found to reproduce it. The vehicle row is created on
// first use and a repeated exchange collapses onto the existing row. The
// optional sum is the SHA1 of the table the indices came from
func (db *Database) AddExchange(vehicle string, unit ecu.ECU, seed, key uint16, sum []byte, algorithms []uint8) error {
	if vehicle == "" {
		return errors.New("no vehicle")
	}

	v, err := db.addVehicle(vehicle)
	if err != nil {
		return err
	}

	var s sql.NullString
	if len(sum) > 0 {
		s.String = fmt.Sprintf("%X", sum)
		s.Valid = true
	}

	exchange, err := db.addExchange(v, unit, seed, key, s)
	if err != nil {
		return err
	}

	for _, algorithm := range algorithms {
		if err := db.addMatch(exchange, algorithm); err != nil {
			return err
		}
	}

	return nil
}

// Algorithms returns the distinct algorithm indices recorded against the
// vehicle and unit, in ascending order
func (db *Database) Algorithms(vehicle string, unit ecu.ECU) ([]uint8, error) {
	rows, err := db.db.Query("SELECT DISTINCT m.algorithm FROM match AS m JOIN exchange AS e ON m.exchange_id = e.id JOIN vehicle AS v ON e.vehicle_id = v.id WHERE v.name = ? AND e.ecu = ? ORDER BY m.algorithm", vehicle, int(unit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var algorithms []uint8

	for rows.Next() {
		var algorithm int64
		if err := rows.Scan(&algorithm); err != nil {
			return nil, err
		}

		algorithms = append(algorithms, uint8(algorithm))
	}

	return algorithms, rows.Err()
}

type xmlExchangeDB struct {
	XMLName   xml.Name      `xml:"ExchangeDB"`
	Vehicles  []xmlVehicle  `xml:"Vehicle"`
	Exchanges []xmlExchange `xml:"Exchange"`
}

type xmlVehicle struct {
	XMLName xml.Name `xml:"Vehicle"`
	ID      int      `xml:"ID"`
	Name    string   `xml:"Name"`
}

type xmlExchange struct {
	XMLName    xml.Name `xml:"Exchange"`
	VehicleID  int      `xml:"VehicleID"`
	ECU        int      `xml:"ECU"`
	Seed       string   `xml:"Seed"`
	Key        string   `xml:"Key"`
	Table      string   `xml:"Table"`
	Algorithms []string `xml:"Algorithm"`
}

// ImportXML wipes any existing data and imports the entries from an XML
// session log
func (db *Database) ImportXML(file string) error {
	b, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	var xmlDB xmlExchangeDB
	if err := xml.Unmarshal(b, &xmlDB); err != nil {
		return err
	}

	if _, err = db.db.Exec("DELETE FROM match"); err != nil {
		return err
	}

	if _, err = db.db.Exec("DELETE FROM exchange"); err != nil {
		return err
	}

	if _, err = db.db.Exec("DELETE FROM vehicle"); err != nil {
		return err
	}

	for _, x := range xmlDB.Exchanges {
		var name string
		for _, v := range xmlDB.Vehicles {
			if v.ID == x.VehicleID {
				name = v.Name

				break
			}
		}

		if name == "" {
			return fmt.Errorf("exchange references unknown vehicle %d", x.VehicleID)
		}

		seed, err := parseHex(x.Seed, 16)
		if err != nil {
			return err
		}

		key, err := parseHex(x.Key, 16)
		if err != nil {
			return err
		}

		var sum sql.NullString
		if x.Table != "" {
			sum.String = strings.ToUpper(x.Table)
			sum.Valid = true
		}

		v, err := db.addVehicle(name)
		if err != nil {
			return err
		}

		exchange, err := db.addExchange(v, ecu.ECU(x.ECU), uint16(seed), uint16(key), sum)
		if err != nil {
			return err
		}

		for _, a := range x.Algorithms {
			algorithm, err := parseHex(a, 8)
			if err != nil {
				return err
			}

			if err := db.addMatch(exchange, uint8(algorithm)); err != nil {
				return err
			}
		}
	}

	return nil
}

func (db *Database) addVehicle(name string) (int64, error) {
	var id int64
	switch err := db.db.QueryRow("SELECT id FROM vehicle WHERE name = ?", name).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := db.db.Exec("INSERT INTO vehicle (name) VALUES (?)", name)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

func (db *Database) addExchange(vehicle int64, unit ecu.ECU, seed, key uint16, sum sql.NullString) (int64, error) {
	var id int64
	switch err := db.db.QueryRow("SELECT id FROM exchange WHERE vehicle_id = ? AND ecu = ? AND seed = ? AND key = ? AND table_sha1 IS ?", vehicle, int(unit), seed, key, sum).Scan(&id); err {
	case sql.ErrNoRows:
		result, err := db.db.Exec("INSERT INTO exchange (vehicle_id, ecu, seed, key, table_sha1) VALUES (?, ?, ?, ?, ?)", vehicle, int(unit), seed, key, sum)
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	case nil:
		return id, nil
	default:
		return 0, err
	}
}

func (db *Database) addMatch(exchange int64, algorithm uint8) error {
	if _, err := db.db.Exec("INSERT OR REPLACE INTO match (exchange_id, algorithm) VALUES (?, ?)", exchange, algorithm); err != nil {
		return err
	}
	return nil
}

func parseHex(s string, bits int) (uint64, error) {
	return strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, bits)
}
