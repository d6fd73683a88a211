package attendance

import (
	"context"
)

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageLimit
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// GET /attendance/records
func (s *Service) ListRecords(ctx context.Context, q RecordQuery) (*RecordListResponse, error) {
	limit, offset := clampPage(q.Limit, q.Offset)
	rows, total, err := s.repo.ListRecords(ctx, RecordFilter{
		VolunteerID: q.VolunteerID,
		ProjectID:   q.ProjectID,
		Open:        q.Open,
		Limit:       limit,
		Offset:      offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]RecordResponse, 0, len(rows))
	for i := 0; i < len(rows); i++ {
		items = append(items, rows[i].toDTO())
	}
	return &RecordListResponse{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

// GET /me/attendance
func (s *Service) VolunteerHistory(ctx context.Context, volunteerID int64, limit, offset int) (*VolunteerHistoryResponse, error) {
	if volunteerID <= 0 {
		return nil, errUnauthenticated()
	}
	list, err := s.ListRecords(ctx, RecordQuery{VolunteerID: &volunteerID, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.SumVolunteerHours(ctx, volunteerID)
	if err != nil {
		return nil, err
	}
	return &VolunteerHistoryResponse{
		VolunteerID: volunteerID,
		Sessions:    sum.Sessions,
		TotalHours:  roundHours(sum.Hours),
		Records:     list.Items,
	}, nil
}

// GET /projects/:project_id/attendance/summary
func (s *Service) ProjectSummary(ctx context.Context, projectID int64) (*ProjectSummaryResponse, error) {
	if projectID <= 0 {
		return nil, ErrInvalid("project_id must be > 0")
	}
	p, err := s.repo.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.SumHours(ctx, projectID)
	if err != nil {
		return nil, err
	}

	out := &ProjectSummaryResponse{ProjectID: p.ID, ProjectName: p.Name, Volunteers: make([]VolunteerHours, 0, len(rows))}
	var total float64
	for _, r := range rows {
		total += r.Hours
		out.Volunteers = append(out.Volunteers, VolunteerHours{
			VolunteerID: r.VolunteerID,
			Sessions:    r.Sessions,
			Hours:       roundHours(r.Hours),
		})
	}
	out.TotalHours = roundHours(total)
	return out, nil
}
