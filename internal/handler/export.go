package handler

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/iliyamo/election-voting-portal/internal/model"
)

var resultsCSVHeader = []string{"rank", "candidate_id", "candidate", "party", "votes", "percentage"}

// writeResultsCSV writes a summary block followed by one row per candidate
// in rank order.
func writeResultsCSV(w io.Writer, res model.ElectionResults) error {
	cw := csv.NewWriter(w)
	summary := [][]string{
		{"election_id", strconv.FormatUint(res.ElectionID, 10)},
		{"title", res.Title},
		{"status", string(res.Status)},
		{"total_votes", strconv.FormatInt(res.TotalVotes, 10)},
		{"eligible_voters", strconv.FormatInt(res.EligibleVoters, 10)},
		{"turnout", strconv.FormatFloat(res.Turnout, 'f', 2, 64)},
		{"computed_at", res.ComputedAt.UTC().Format(time.RFC3339)},
		{},
		resultsCSVHeader,
	}
	for _, row := range summary {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	for _, t := range res.Candidates {
		if err := cw.Write([]string{
			strconv.Itoa(t.Rank),
			strconv.FormatUint(t.CandidateID, 10),
			t.Name,
			t.Party,
			strconv.FormatInt(t.Votes, 10),
			strconv.FormatFloat(t.Percentage, 'f', 2, 64),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
