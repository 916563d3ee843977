package msprime

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// CSVLogger is a DataLogger that writes simulation results as
// comma-delimited files.
type CSVLogger struct {
	recordPath     string
	nodePath       string
	breakpointPath string
	mutationPath   string
}

func NewCSVLogger(basepath string, i int) *CSVLogger {
	l := new(CSVLogger)
	l.SetBasePath(basepath, i)
	return l
}

func (l *CSVLogger) SetBasePath(basepath string, i int) {
	if info, err := os.Stat(basepath); err == nil && info.IsDir() {
		basepath += fmt.Sprintf("log.%03d", i)
	}
	l.recordPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "records")
	l.nodePath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "nodes")
	l.breakpointPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "breaks")
	l.mutationPath = strings.TrimSuffix(basepath, ".") + fmt.Sprintf(".%03d.%s.csv", i, "muts")
}

// Init is a no-op for CSV files; each Write method buffers its rows
// and appends them to its file once its channel is closed.
func (l *CSVLogger) Init() error {
	return nil
}

func (l *CSVLogger) WriteRecords(c <-chan RecordPackage) {
	// Format
	// <instanceID>  <treeUID>  <left>  <right>  <parent>  <children>  <time>  <population>
	const template = "%d,%s,%.10g,%.10g,%d,%s,%.10g,%d\n"
	var b bytes.Buffer
	for pack := range c {
		children := make([]string, len(pack.record.Children))
		for i, child := range pack.record.Children {
			children[i] = fmt.Sprintf("%d", child)
		}
		row := fmt.Sprintf(template,
			pack.instanceID,
			pack.treeUID,
			pack.record.Left,
			pack.record.Right,
			pack.record.Node,
			strings.Join(children, ";"),
			pack.record.Time,
			pack.record.Population,
		)
		b.WriteString(row)
	}
	AppendToFile(l.recordPath, b.Bytes())
}

func (l *CSVLogger) WriteNodes(c <-chan NodePackage) {
	// Format
	// <instanceID>  <treeUID>  <node>  <time>  <population>
	const template = "%d,%s,%d,%.10g,%d\n"
	var b bytes.Buffer
	for pack := range c {
		row := fmt.Sprintf(template,
			pack.instanceID,
			pack.treeUID,
			pack.node,
			pack.time,
			pack.population,
		)
		b.WriteString(row)
	}
	AppendToFile(l.nodePath, b.Bytes())
}

func (l *CSVLogger) WriteBreakpoints(c <-chan BreakpointPackage) {
	// Format
	// <instanceID>  <treeUID>  <position>
	const template = "%d,%s,%.10g\n"
	var b bytes.Buffer
	for pack := range c {
		row := fmt.Sprintf(template,
			pack.instanceID,
			pack.treeUID,
			pack.position,
		)
		b.WriteString(row)
	}
	AppendToFile(l.breakpointPath, b.Bytes())
}

func (l *CSVLogger) WriteMutations(c <-chan MutationPackage) {
	// Format
	// <instanceID>  <treeUID>  <position>  <node>
	const template = "%d,%s,%.10g,%d\n"
	var b bytes.Buffer
	for pack := range c {
		row := fmt.Sprintf(template,
			pack.instanceID,
			pack.treeUID,
			pack.position,
			pack.node,
		)
		b.WriteString(row)
	}
	AppendToFile(l.mutationPath, b.Bytes())
}
