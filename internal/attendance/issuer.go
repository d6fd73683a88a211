package attendance

import (
	"context"
	"errors"

	"VMS-backend/internal/platform/logger"
)

// 衝突時の再発行回数の上限
const maxIssueAttempts = 5

// IssueToken: QR 用トークンを発行。以前のトークンは各自の期限まで有効なまま
func (s *Service) IssueToken(ctx context.Context, projectID int64, action Action) (*TokenResponse, error) {
	if projectID <= 0 {
		return nil, ErrInvalid("project_id must be > 0")
	}
	if !action.Valid() {
		return nil, ErrInvalid("action must be check_in or check_out")
	}
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		value := s.tokens()
		c := &Credential{
			Kind:      KindToken,
			Digest:    digest(KindToken, value),
			ProjectID: projectID,
			Action:    action,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.policy.tokenTTL(action)),
		}
		if err := s.repo.InsertCredential(ctx, c); err != nil {
			if errors.Is(err, errDuplicate) {
				continue
			}
			return nil, err
		}

		payload := TokenPayload(value, s.policy.ScanBaseURL)
		form := payload
		if s.render != nil {
			rendered, err := s.render.Render(payload)
			if err != nil {
				return nil, ErrInternal("failed to render token")
			}
			form = rendered
		}

		logger.InfoContext(ctx, "attendance token issued",
			"project_id", projectID, "action", action, "expires_at", c.ExpiresAt)
		return &TokenResponse{
			Value:          value,
			Payload:        payload,
			RenderableForm: form,
			Action:         action,
			ProjectID:      projectID,
			IssuedAt:       c.IssuedAt,
			ExpiresAt:      c.ExpiresAt,
		}, nil
	}
	return nil, ErrInternal("could not allocate a unique token")
}

// IssueCode: 6桁コードを発行。有効な（未使用・期限内）コードと衝突したら引き直す
func (s *Service) IssueCode(ctx context.Context, projectID int64, action Action, boundTo *int64) (*CodeResponse, error) {
	if projectID <= 0 {
		return nil, ErrInvalid("project_id must be > 0")
	}
	if !action.Valid() {
		return nil, ErrInvalid("action must be check_in or check_out")
	}
	if boundTo != nil && *boundTo <= 0 {
		return nil, ErrInvalid("volunteer_id must be > 0")
	}
	if _, err := s.repo.GetProject(ctx, projectID); err != nil {
		return nil, err
	}

	now := s.now()
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		value, err := s.codes()
		if err != nil {
			return nil, err
		}
		if !codePattern.MatchString(value) {
			return nil, ErrInternal("code source produced an invalid code")
		}
		d := digest(KindCode, value)

		active, err := s.repo.ActiveCodeExists(ctx, d, now)
		if err != nil {
			return nil, err
		}
		if active {
			logger.DebugContext(ctx, "attendance code collision, reissuing", "attempt", attempt+1)
			continue
		}

		c := &Credential{
			Kind:      KindCode,
			Digest:    d,
			ProjectID: projectID,
			Action:    action,
			BoundTo:   boundTo,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.policy.CodeTTL),
		}
		if err := s.repo.InsertCredential(ctx, c); err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "attendance code issued",
			"project_id", projectID, "action", action, "bound", boundTo != nil, "expires_at", c.ExpiresAt)
		return &CodeResponse{
			Value:          value,
			RenderableForm: CodeDisplay(value),
			Action:         action,
			ProjectID:      projectID,
			BoundTo:        boundTo,
			IssuedAt:       c.IssuedAt,
			ExpiresAt:      c.ExpiresAt,
		}, nil
	}
	return nil, ErrInternal("could not allocate a unique code")
}
