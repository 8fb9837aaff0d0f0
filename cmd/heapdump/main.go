// Command heapdump prints the pages and tuples of a heap file.
//
//	heapdump -file people.dat -schema id:int,name:string
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"mit.edu/dsg/heapdb/common"
	"mit.edu/dsg/heapdb/storage"
)

var (
	fFile   = flag.String("file", "", "path of the heap file to dump")
	fSchema = flag.String("schema", "", "comma separated column types, optionally named: id:int,name:string")
	fColor  = flag.Bool("color", true, "colorize output")
	fEmpty  = flag.Bool("empty", false, "also print pages with no tuples")
)

func oops(stage string, err error) {
	fmt.Fprintf(os.Stderr, "ERROR [%s] %s\n", stage, err)
	os.Exit(1)
}

// parseSchema turns "int,string" or "id:int,name:string" into a TupleDesc. Unnamed columns are
// called f0, f1, ...
func parseSchema(s string) (*storage.TupleDesc, error) {
	if strings.TrimSpace(s) == "" {
		return nil, common.NewError(common.InvalidArgumentError, "empty schema")
	}
	parts := strings.Split(s, ",")
	items := make([]storage.FieldItem, len(parts))
	for i, part := range parts {
		name, typeName, named := strings.Cut(part, ":")
		if !named {
			name, typeName = fmt.Sprintf("f%d", i), part
		}
		t, err := common.ParseType(typeName)
		if err != nil {
			return nil, err
		}
		items[i] = storage.FieldItem{Name: strings.TrimSpace(name), Type: t}
	}
	return storage.NewTupleDesc(items...), nil
}

type dumper struct {
	out       io.Writer
	showEmpty bool
	header    func(a ...interface{}) string
	slot      func(a ...interface{}) string
	dim       func(a ...interface{}) string
}

func newDumper(out io.Writer, showEmpty bool) *dumper {
	return &dumper{
		out:       out,
		showEmpty: showEmpty,
		header:    color.New(color.FgCyan, color.Bold).SprintFunc(),
		slot:      color.New(color.FgYellow).SprintFunc(),
		dim:       color.New(color.FgHiBlack).SprintFunc(),
	}
}

// dump reads every page of hf directly from disk, bypassing the buffer pool and its locks.
func (d *dumper) dump(hf *storage.HeapFile) error {
	numPages, err := hf.NumPages()
	if err != nil {
		return err
	}
	desc := hf.TupleDesc()
	fmt.Fprintf(d.out, "%s %s\n", d.header("file"), hf.Path())
	fmt.Fprintf(d.out, "%s %s\n", d.header("schema"), desc)
	fmt.Fprintf(d.out, "%s %d, %d slots per page\n", d.header("pages"), numPages, storage.SlotsPerPage(desc))

	total := 0
	for i := 0; i < numPages; i++ {
		page, err := hf.ReadPage(common.PageID{Table: hf.ID(), PageNum: int32(i)})
		if err != nil {
			return err
		}
		total += page.NumUsed()
		if page.NumUsed() == 0 && !d.showEmpty {
			continue
		}
		fmt.Fprintf(d.out, "%s %d %s\n", d.header("page"), i,
			d.dim(fmt.Sprintf("(%d/%d used)", page.NumUsed(), page.NumSlots())))
		for _, t := range page.Tuples() {
			fmt.Fprintf(d.out, "  %s %s\n", d.slot(fmt.Sprintf("[%d]", t.RID().Slot)), t)
		}
	}
	fmt.Fprintf(d.out, "%s %d\n", d.header("tuples"), total)
	return nil
}

func main() {
	flag.Parse()
	if *fFile == "" || *fSchema == "" {
		flag.Usage()
		os.Exit(2)
	}
	color.NoColor = color.NoColor || !*fColor

	desc, err := parseSchema(*fSchema)
	if err != nil {
		oops("schema", err)
	}
	if _, err := os.Stat(*fFile); err != nil {
		oops("open", err)
	}
	// no page source: the dumper only reads pages directly
	hf, err := storage.NewHeapFile(*fFile, desc, nil)
	if err != nil {
		oops("open", err)
	}
	defer hf.Close()

	if err := newDumper(os.Stdout, *fEmpty).dump(hf); err != nil {
		oops("dump", err)
	}
}
