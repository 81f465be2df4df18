//go:build ignore

// Package main generates a synthetic home-directory corpus for indexing
// and search benchmarks: notes, reports, invoices, spreadsheets exports,
// and a sprinkling of source files, spread over a realistic folder tree.
// Usage: go run scripts/generate-test-corpus.go -files 1000 -output testdata/bench
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
)

var (
	fileCount = flag.Int("files", 500, "total number of files to generate")
	outputDir = flag.String("output", "testdata/bench", "output directory")
	seed      = flag.Int64("seed", 42, "PRNG seed for reproducible corpora")
)

var topics = []string{
	"budget", "roadmap", "onboarding", "retrospective", "inventory",
	"travel", "insurance", "renovation", "marketing", "payroll",
	"vendor", "audit", "migration", "quarterly", "compliance",
}

var people = []string{
	"alex", "casey", "jordan", "morgan", "riley", "sam", "taylor",
}

var folders = []string{
	"Documents/work", "Documents/personal", "Documents/finance",
	"Notes", "Projects/neural-notes", "Projects/scripts", "Archive/2023",
}

const noteTemplate = `# %s meeting notes

Attendees: %s, %s

## Decisions

- The %s plan moves to next quarter pending the %s review.
- %s owns the follow-up with the %s team.

## Action items

1. Draft the revised %s summary by Friday.
2. Share the %s checklist in the shared folder.
`

const reportTemplate = `%s Report — %s

Summary

The %s initiative finished the period %d%% over its target. Spending on
%s stayed flat while the %s line item grew %d%% month over month.

Details

Headcount allocated to %s work held at %d. The %s backlog shrank for the
third straight period. Risks remain around the %s timeline.

Prepared by %s.
`

const invoiceTemplate = `INVOICE #%04d

Bill to: %s department
Reference: %s-%d

  1. %s services .................... $%d.00
  2. %s support (monthly) ........... $%d.00
  3. Processing fee ................. $%d.00

Total due: $%d.00
Payment terms: net 30.
`

const csvHeader = "date,category,description,amount\n"

const goTemplate = `package %s

import "fmt"

// %s summarizes the %s records accumulated during a run.
type %s struct {
	Count int
	Total float64
}

// Add folds one %s amount into the summary.
func (s *%s) Add(amount float64) {
	s.Count++
	s.Total += amount
}

// String renders the summary for the %s report.
func (s *%s) String() string {
	return fmt.Sprintf("%s: %%d entries, %%0.2f total", s.Count, s.Total)
}
`

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	for _, folder := range folders {
		if err := os.MkdirAll(filepath.Join(*outputDir, folder), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "mkdir: %v\n", err)
			os.Exit(1)
		}
	}

	for i := 0; i < *fileCount; i++ {
		var err error
		switch i % 5 {
		case 0:
			err = writeNote(rng, i)
		case 1:
			err = writeReport(rng, i)
		case 2:
			err = writeInvoice(rng, i)
		case 3:
			err = writeLedger(rng, i)
		case 4:
			err = writeSource(rng, i)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate file %d: %v\n", i, err)
			os.Exit(1)
		}
	}

	fmt.Printf("generated %d files under %s\n", *fileCount, *outputDir)
}

func pick(rng *rand.Rand, set []string) string {
	return set[rng.Intn(len(set))]
}

func writeNote(rng *rand.Rand, i int) error {
	topic := pick(rng, topics)
	content := fmt.Sprintf(noteTemplate,
		strings.Title(topic), pick(rng, people), pick(rng, people),
		topic, pick(rng, topics), pick(rng, people), pick(rng, topics),
		topic, pick(rng, topics))
	name := fmt.Sprintf("%s-notes-%d.md", topic, i)
	return os.WriteFile(filepath.Join(*outputDir, "Notes", name), []byte(content), 0o644)
}

func writeReport(rng *rand.Rand, i int) error {
	topic := pick(rng, topics)
	content := fmt.Sprintf(reportTemplate,
		strings.Title(topic), fmt.Sprintf("Q%d", 1+rng.Intn(4)),
		topic, rng.Intn(40), pick(rng, topics), pick(rng, topics), rng.Intn(25),
		topic, 2+rng.Intn(12), pick(rng, topics), pick(rng, topics),
		strings.Title(pick(rng, people)))
	name := fmt.Sprintf("%s-report-%d.txt", topic, i)
	return os.WriteFile(filepath.Join(*outputDir, "Documents/work", name), []byte(content), 0o644)
}

func writeInvoice(rng *rand.Rand, i int) error {
	a, b, c := 100+rng.Intn(2000), 50+rng.Intn(500), 10+rng.Intn(90)
	content := fmt.Sprintf(invoiceTemplate,
		i, strings.Title(pick(rng, topics)), strings.ToUpper(pick(rng, topics)), rng.Intn(9999),
		strings.Title(pick(rng, topics)), a,
		strings.Title(pick(rng, topics)), b,
		c, a+b+c)
	name := fmt.Sprintf("invoice-%04d.txt", i)
	return os.WriteFile(filepath.Join(*outputDir, "Documents/finance", name), []byte(content), 0o644)
}

func writeLedger(rng *rand.Rand, i int) error {
	var sb strings.Builder
	sb.WriteString(csvHeader)
	rows := 20 + rng.Intn(80)
	for r := 0; r < rows; r++ {
		fmt.Fprintf(&sb, "2024-%02d-%02d,%s,%s expense,%d.%02d\n",
			1+rng.Intn(12), 1+rng.Intn(28),
			pick(rng, topics), pick(rng, topics),
			rng.Intn(900), rng.Intn(100))
	}
	name := fmt.Sprintf("ledger-%d.csv", i)
	return os.WriteFile(filepath.Join(*outputDir, "Documents/finance", name), []byte(sb.String()), 0o644)
}

func writeSource(rng *rand.Rand, i int) error {
	topic := pick(rng, topics)
	typeName := strings.Title(topic) + "Summary"
	content := fmt.Sprintf(goTemplate,
		topic, typeName, topic, typeName, topic, typeName,
		topic, typeName, typeName)
	name := fmt.Sprintf("%s_summary_%d.go", topic, i)
	return os.WriteFile(filepath.Join(*outputDir, "Projects/scripts", name), []byte(content), 0o644)
}
