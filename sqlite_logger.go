package msprime

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// SQLiteLogger is a DataLogger that writes simulation results to
// SQLite databases. Each writer function writes to an independent
// database so the four writers of one replicate can stream
// concurrently; replicates share those databases, one table each.
type SQLiteLogger struct {
	recordPath     string
	nodePath       string
	breakpointPath string
	mutationPath   string
	instanceID     int
}

func NewSQLiteLogger(basepath string, i int) *SQLiteLogger {
	l := new(SQLiteLogger)
	l.SetBasePath(basepath, i)
	return l
}

func (l *SQLiteLogger) SetBasePath(basepath string, i int) {
	if info, err := os.Stat(basepath); err == nil && info.IsDir() {
		basepath += fmt.Sprintf("log.%03d", i)
	}
	l.recordPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "records")
	l.nodePath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "nodes")
	l.breakpointPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "breaks")
	l.mutationPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%s.db", "muts")

	// set instance
	l.instanceID = i
}

// Init creates the tables for the current replicate.
func (l *SQLiteLogger) Init() error {
	newTable := func(path, tableName, cols string) error {
		db, err := OpenSQLiteDB(path)
		if err != nil {
			return err
		}
		defer db.Close()
		// cols example:
		// (id integer not null primary key, treeUID text, position real)
		_sqlStmt := `
	create table %s %s;
	delete from %s;
	`
		fullTableName := fmt.Sprintf("%s%03d", tableName, l.instanceID)
		sqlStmt := fmt.Sprintf(_sqlStmt, fullTableName, cols, fullTableName)
		_, err = db.Exec(sqlStmt)
		if err != nil {
			return fmt.Errorf("%q: %s", err, sqlStmt)
		}
		return nil
	}

	err := newTable(l.recordPath, "Record", "(id integer not null primary key, treeUID text, leftPos real, rightPos real, parent int, children text, time real, population int)")
	if err != nil {
		return err
	}
	err = newTable(l.nodePath, "Node", "(id integer not null primary key, treeUID text, node int, time real, population int)")
	if err != nil {
		return err
	}
	err = newTable(l.breakpointPath, "Breakpoint", "(id integer not null primary key, treeUID text, position real)")
	if err != nil {
		return err
	}
	err = newTable(l.mutationPath, "Mutation", "(id integer not null primary key, treeUID text, position real, node int)")
	if err != nil {
		return err
	}
	return nil
}

func (l *SQLiteLogger) WriteRecords(c <-chan RecordPackage) {
	tableName := fmt.Sprintf("Record%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(treeUID, leftPos, rightPos, parent, children, time, population) values(?, ?, ?, ?, ?, ?, ?)"
	db, err := OpenSQLiteDB(l.recordPath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		children := make([]string, len(pack.record.Children))
		for i, child := range pack.record.Children {
			children[i] = fmt.Sprintf("%d", child)
		}
		_, err = stmt.Exec(
			pack.treeUID.String(),
			pack.record.Left,
			pack.record.Right,
			pack.record.Node,
			strings.Join(children, ";"),
			pack.record.Time,
			pack.record.Population,
		)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	tx.Commit()
}

func (l *SQLiteLogger) WriteNodes(c <-chan NodePackage) {
	tableName := fmt.Sprintf("Node%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(treeUID, node, time, population) values(?, ?, ?, ?)"
	db, err := OpenSQLiteDB(l.nodePath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		_, err = stmt.Exec(
			pack.treeUID.String(),
			pack.node,
			pack.time,
			pack.population,
		)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	tx.Commit()
}

func (l *SQLiteLogger) WriteBreakpoints(c <-chan BreakpointPackage) {
	tableName := fmt.Sprintf("Breakpoint%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(treeUID, position) values(?, ?)"
	db, err := OpenSQLiteDB(l.breakpointPath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		_, err = stmt.Exec(pack.treeUID.String(), pack.position)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	tx.Commit()
}

func (l *SQLiteLogger) WriteMutations(c <-chan MutationPackage) {
	tableName := fmt.Sprintf("Mutation%03d", l.instanceID)
	_stmt := "insert into " + tableName + "(treeUID, position, node) values(?, ?, ?)"
	db, err := OpenSQLiteDB(l.mutationPath)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer db.Close()
	tx, err := db.Begin()
	if err != nil {
		log.Fatal(err)
		return
	}
	stmt, err := tx.Prepare(_stmt)
	if err != nil {
		log.Fatal(err)
		return
	}
	defer stmt.Close()
	for pack := range c {
		_, err = stmt.Exec(pack.treeUID.String(), pack.position, pack.node)
		if err != nil {
			log.Fatal(err)
			return
		}
	}
	tx.Commit()
}
