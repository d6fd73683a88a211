package attendance

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

const (
	EncodingUTF8  = "utf-8"
	EncodingCP932 = "cp932"
)

var exportHeader = []string{"record_id", "project_id", "project_name", "volunteer_id", "check_in_at", "check_out_at", "hours_worked"}

// ExportCSV: プロジェクトの台帳を CSV で返す。cp932 は Excel(Windows) でそのまま開く用
func (s *Service) ExportCSV(ctx context.Context, projectID int64, encoding string) ([]byte, error) {
	if projectID <= 0 {
		return nil, ErrInvalid("project_id must be > 0")
	}
	encoding = strings.ToLower(strings.TrimSpace(encoding))
	if encoding == "" {
		encoding = EncodingUTF8
	}
	if encoding != EncodingUTF8 && encoding != EncodingCP932 && encoding != "shift_jis" {
		return nil, ErrInvalid("encoding must be utf-8 or cp932")
	}

	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	var b bytes.Buffer
	var out io.Writer = &b
	var tw *transform.Writer
	if encoding != EncodingUTF8 {
		tw = transform.NewWriter(&b, japanese.ShiftJIS.NewEncoder())
		out = tw
	}
	w := csv.NewWriter(out)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}

	for offset := 0; ; offset += MaxPageLimit {
		rows, total, err := s.repo.ListRecords(ctx, RecordFilter{ProjectID: &projectID, Limit: MaxPageLimit, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			if err := w.Write(exportRow(p, r)); err != nil {
				return nil, ErrInvalid("csv encode: " + err.Error())
			}
		}
		if len(rows) == 0 || int64(offset+len(rows)) >= total {
			break
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		// cp932 に無い文字など
		return nil, ErrInvalid("csv encode: " + err.Error())
	}
	if tw != nil {
		if err := tw.Close(); err != nil {
			return nil, ErrInvalid("csv encode: " + err.Error())
		}
	}
	return b.Bytes(), nil
}

func exportRow(p *Project, r Record) []string {
	checkOut, hours := "", ""
	if r.CheckOutAt != nil {
		checkOut = r.CheckOutAt.UTC().Format(time.RFC3339)
	}
	if r.HoursWorked != nil {
		hours = strconv.FormatFloat(roundHours(*r.HoursWorked), 'f', 2, 64)
	}
	return []string{
		r.RecordULID,
		strconv.FormatInt(r.ProjectID, 10),
		p.Name,
		strconv.FormatInt(r.VolunteerID, 10),
		r.CheckInAt.UTC().Format(time.RFC3339),
		checkOut,
		hours,
	}
}
