package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/oremus-labs/research-orchestrator/internal/artifact"
	"github.com/oremus-labs/research-orchestrator/internal/models"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

var citationMarkerRE = regexp.MustCompile(`\[(\d+)\]`)

// finalize links citation markers to a References section, writes the
// Markdown report to the Artifact Store, and returns the report text plus
// its asset record (spec §4.1 Finalize phase). Markdown/PDF/DOCX rendering
// itself is an external collaborator specified only at its interface (spec
// §1), so only the Markdown body — this job's own report text — is ever
// produced here; PDFURL/DOCXURL are left blank.
func (e *Executor) finalize(ctx context.Context, jobID, draft string) (string, models.ReportAssets, error) {
	if err := e.backfillLedgerFromSources(jobID); err != nil {
		return "", models.ReportAssets{}, err
	}

	entries, err := store.ListLedgerEntries(e.DB, jobID)
	if err != nil {
		return "", models.ReportAssets{}, fmt.Errorf("list ledger entries: %w", err)
	}

	report := linkifyCitations(draft) + renderReferences(entries)

	assets := models.ReportAssets{Checksums: map[string]string{}}
	if e.Artifacts != nil {
		key := artifact.ReportKey(jobID, "md")
		url, err := e.Artifacts.Put(ctx, key, []byte(report), "text/markdown")
		if err != nil {
			return "", models.ReportAssets{}, fmt.Errorf("store report artifact: %w", err)
		}
		assets.MarkdownURL = url
		assets.Checksums["markdown"] = artifact.SHA256Hex([]byte(report))
	}

	return report, assets, nil
}

// backfillLedgerFromSources assigns citation numbers to every note's sources
// in creation order when nothing has populated the ledger yet (Classic mode
// has no per-section citation-assignment step, and any job might otherwise
// reach Finalize with an empty ledger; spec §4.2 "Fallback: if the ledger is
// empty at finalize time, assign citations from the notes' sources in
// creation order").
func (e *Executor) backfillLedgerFromSources(jobID string) error {
	existing, err := store.ListLedgerEntries(e.DB, jobID)
	if err != nil {
		return fmt.Errorf("check existing ledger: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	notes, err := store.ListNotesForJob(e.DB, jobID)
	if err != nil {
		return fmt.Errorf("load notes for ledger backfill: %w", err)
	}
	for _, n := range notes {
		sources, err := store.ListSourcesForNote(e.DB, n.ID)
		if err != nil {
			return fmt.Errorf("load sources for note %d: %w", n.ID, err)
		}
		for _, src := range sources {
			hash := models.SourceHash(src.URL, src.Title, src.RawStorageURL)
			if _, err := store.AssignCitation(e.DB, jobID, hash, src.Title, src.URL); err != nil {
				return fmt.Errorf("assign citation for note %d: %w", n.ID, err)
			}
		}
	}
	return nil
}

// linkifyCitations rewrites inline markers like [3] into markdown anchors
// pointing at the References section (spec §4.1 Finalize phase).
func linkifyCitations(text string) string {
	return citationMarkerRE.ReplaceAllStringFunc(text, func(m string) string {
		n := citationMarkerRE.FindStringSubmatch(m)[1]
		return fmt.Sprintf("[%s](#ref-%s)", n, n)
	})
}

// renderReferences builds the trailing Markdown References section from the
// job's citation ledger (spec §4.1 Finalize phase, §4.2 rendering).
func renderReferences(entries []*models.LedgerEntry) string {
	if len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n\n## References\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. <a id=\"ref-%s\"></a>[%s](%s)\n", e.CitationNumber, strconv.Itoa(e.CitationNumber), e.Title, e.URL)
	}
	return b.String()
}
