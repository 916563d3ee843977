package msprime

import (
	"database/sql"
	"os"
	"sync"

	"github.com/segmentio/ksuid"
	// sqlite3 driver
	_ "github.com/mattn/go-sqlite3"
)

// DataLogger is the general definition of a logger that records
// simulation results to file, whether it writes text files or writes
// to a database.
type DataLogger interface {
	// SetBasePath sets the base path of the logger.
	SetBasePath(path string, i int)
	// Init initializes the logger. For example, if the logger writes
	// CSV files, Init can create the files and write header
	// information first. Or if the logger writes to a database, Init
	// can be used to create the tables.
	Init() error
	// WriteRecords appends the coalescence records of one replicate.
	WriteRecords(c <-chan RecordPackage)
	// WriteNodes appends the node table of one replicate.
	WriteNodes(c <-chan NodePackage)
	// WriteBreakpoints appends the surviving recombination
	// breakpoints of one replicate.
	WriteBreakpoints(c <-chan BreakpointPackage)
	// WriteMutations appends the infinite-sites mutations dropped on
	// one replicate, if mutations were generated.
	WriteMutations(c <-chan MutationPackage)
}

// RecordPackage encapsulates one coalescence record to be written
// together with the replicate it came from.
type RecordPackage struct {
	instanceID int
	treeUID    ksuid.KSUID
	record     CoalescenceRecord
}

// NodePackage encapsulates one node-table row to be written.
type NodePackage struct {
	instanceID int
	treeUID    ksuid.KSUID
	node       int
	time       float64
	population int
}

// BreakpointPackage encapsulates one surviving breakpoint.
type BreakpointPackage struct {
	instanceID int
	treeUID    ksuid.KSUID
	position   float64
}

// MutationPackage encapsulates one mutation to be written.
type MutationPackage struct {
	instanceID int
	treeUID    ksuid.KSUID
	position   float64
	node       int
}

// LogTreeSequence streams one finished replicate through a logger.
func LogTreeSequence(logger DataLogger, i int, ts *TreeSequence, mutations []Mutation) {
	recordC := make(chan RecordPackage)
	nodeC := make(chan NodePackage)
	breakC := make(chan BreakpointPackage)
	mutC := make(chan MutationPackage)

	var wg sync.WaitGroup
	wg.Add(4)
	go func() {
		logger.WriteRecords(recordC)
		wg.Done()
	}()
	go func() {
		logger.WriteNodes(nodeC)
		wg.Done()
	}()
	go func() {
		logger.WriteBreakpoints(breakC)
		wg.Done()
	}()
	go func() {
		logger.WriteMutations(mutC)
		wg.Done()
	}()

	uid := ts.UID()
	for _, rec := range ts.Records() {
		recordC <- RecordPackage{instanceID: i, treeUID: uid, record: rec}
	}
	close(recordC)
	for node := 0; node < ts.NumNodes(); node++ {
		nodeC <- NodePackage{
			instanceID: i,
			treeUID:    uid,
			node:       node,
			time:       ts.NodeTime(node),
			population: ts.NodePopulation(node),
		}
	}
	close(nodeC)
	for _, pos := range ts.Breakpoints() {
		breakC <- BreakpointPackage{instanceID: i, treeUID: uid, position: pos}
	}
	close(breakC)
	for _, m := range mutations {
		mutC <- MutationPackage{instanceID: i, treeUID: uid, position: m.Position, node: m.Node}
	}
	close(mutC)
	wg.Wait()
}

// AppendToFile appends bytes to the file at path, creating it if it
// does not exist.
func AppendToFile(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return nil
}

// OpenSQLiteDB opens the SQLite database at the given path.
func OpenSQLiteDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	return db, nil
}
