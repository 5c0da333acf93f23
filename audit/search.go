package audit

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/byteness/sentinel-gateway/gateway"
)

// SearchCriteria filters the in-memory envelope store for forensic search
// and export, per spec.md's supplemented search/export surface.
type SearchCriteria struct {
	UserID             string
	EventTypes         []EventType
	MinClassification  gateway.ClassificationLevel
	From               time.Time
	To                  time.Time
	Resource           string
	Limit              int
}

func (c SearchCriteria) matches(e ForensicEnvelope) bool {
	if c.UserID != "" && e.UserID != c.UserID {
		return false
	}
	if len(c.EventTypes) > 0 {
		found := false
		for _, t := range c.EventTypes {
			if e.EventType == t {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if e.Classification < c.MinClassification {
		return false
	}
	if !c.From.IsZero() && e.Timestamp.Before(c.From) {
		return false
	}
	if !c.To.IsZero() && e.Timestamp.After(c.To) {
		return false
	}
	if c.Resource != "" && e.Resource != c.Resource {
		return false
	}
	return true
}

// SearchResults is the outcome of a Search call.
type SearchResults struct {
	Envelopes []ForensicEnvelope
	Total     int
	Truncated bool
}

// Search filters envelopes against criteria, newest first. It operates on
// an in-memory slice; callers querying a PQSink-backed store load the
// candidate window themselves and pass it in.
func Search(envelopes []ForensicEnvelope, criteria SearchCriteria) SearchResults {
	matched := make([]ForensicEnvelope, 0, len(envelopes))
	for _, e := range envelopes {
		if criteria.matches(e) {
			matched = append(matched, e)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	truncated := false
	if criteria.Limit > 0 && len(matched) > criteria.Limit {
		matched = matched[:criteria.Limit]
		truncated = true
	}
	return SearchResults{Envelopes: matched, Total: total, Truncated: truncated}
}

// ExportFormat selects the export encoding for WriteExport.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
	ExportXML  ExportFormat = "xml"
)

// WriteExport serializes envelopes to w in the requested format.
func WriteExport(w io.Writer, envelopes []ForensicEnvelope, format ExportFormat) error {
	switch format {
	case ExportJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(envelopes)
	case ExportXML:
		type exportRoot struct {
			XMLName   xml.Name           `xml:"audit_export"`
			Envelopes []ForensicEnvelope `xml:"envelope"`
		}
		enc := xml.NewEncoder(w)
		enc.Indent("", "  ")
		return enc.Encode(exportRoot{Envelopes: envelopes})
	case ExportCSV:
		return writeCSV(w, envelopes)
	default:
		return writeCSV(w, envelopes)
	}
}

func writeCSV(w io.Writer, envelopes []ForensicEnvelope) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"envelope_id", "operation_id", "event_type", "timestamp", "user_id", "session_id", "classification", "action", "resource", "chain_hash"}
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, e := range envelopes {
		row := []string{
			e.EnvelopeID.String(),
			e.OperationID.String(),
			string(e.EventType),
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			e.UserID,
			e.SessionID.String(),
			strconv.Itoa(int(e.Classification)),
			e.Action,
			e.Resource,
			e.ChainHash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	return nil
}
