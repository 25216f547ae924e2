// Package fastaio implements the FASTA record reader/writer named as the
// readFastSeqs external collaborator in spec.md §6. It is grounded on the
// teacher's fasta.go/rw.go (ReadOriginalSeqs / readFasta), which read FASTA
// through biogo's io/seqio/fasta reader and biogo's seq.Seq type; this
// package standardizes on the modern continuation of that library,
// github.com/biogo/biogo, rather than the historical code.google.com/p
// and kortschak/biogo import paths the teacher's various binaries used.
package fastaio

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/biogo/biogo/alphabet"
	"github.com/biogo/biogo/io/seqio/fasta"
	"github.com/biogo/biogo/seq/linear"
)

// Record is a single (name, sequence) FASTA entry, in the §6 output shape:
// name preserved from the input record, bases uppercased.
type Record struct {
	Name string
	Seq  []byte
}

// ReadAll reads every record from a FASTA file at path, uppercasing bases
// the way the teacher's ReadOriginalSeqs does before handing them to the
// rest of the pipeline.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fastaio: open %s: %w", path, err)
	}
	defer f.Close()

	template := linear.NewSeq("", nil, alphabet.DNA)
	reader := fasta.NewReader(f, template)

	var records []Record
	for {
		s, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("fastaio: read %s: %w", path, err)
		}
		ls, ok := s.(*linear.Seq)
		if !ok {
			return nil, fmt.Errorf("fastaio: unexpected sequence type %T", s)
		}
		bases := make([]byte, len(ls.Seq))
		for i, l := range ls.Seq {
			bases[i] = byte(l)
		}
		records = append(records, Record{
			Name: ls.Name(),
			Seq:  []byte(strings.ToUpper(string(bases))),
		})
	}
	return records, nil
}

// WriteAll writes (name, inputString) pairs back out FASTA-style: input
// symbols (which may include control characters outside the DNA alphabet)
// are written verbatim as the record body, matching §6's output contract.
func WriteAll(w io.Writer, names []string, traces []string) error {
	if len(names) != len(traces) {
		return fmt.Errorf("fastaio: %d names but %d traces", len(names), len(traces))
	}
	bw := bufio.NewWriter(w)
	for i, name := range names {
		if _, err := fmt.Fprintf(bw, ">%s\n%s\n", name, traces[i]); err != nil {
			return err
		}
	}
	return bw.Flush()
}
