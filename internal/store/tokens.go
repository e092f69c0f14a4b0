package store

import "time"

// TokenUsage is one persisted API-response usage record.
type TokenUsage struct {
	ConversationID      string
	ModelNickname       string
	InputTokens         int
	OutputTokens        int
	ReasoningTokens     int
	InputCostMicros     int64
	OutputCostMicros    int64
	ReasoningCostMicros int64
	CreatedAt           time.Time
}

// RecordUsage persists one token-usage row.
func (s *Store) RecordUsage(u TokenUsage) error {
	if s == nil {
		return nil
	}
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec(
			`INSERT INTO model_token_usage
			 (conversation_id, model_nickname, input_tokens, output_tokens, reasoning_tokens,
			  input_cost_micros, output_cost_micros, reasoning_cost_micros, created)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			u.ConversationID, u.ModelNickname, u.InputTokens, u.OutputTokens, u.ReasoningTokens,
			u.InputCostMicros, u.OutputCostMicros, u.ReasoningCostMicros, createdAt.Unix(),
		)
		return struct{}{}, err
	})
	return err
}

// CorrectionRow is the persisted per-model correction factor.
type CorrectionRow struct {
	ModelNickname string
	TotalSamples  int
	SumRatio      float64
	AvgCorrection float64
}

// LoadCorrection returns a model's correction row, or a zero-state row
// (avgCorrection=1.0, totalSamples=0) if none exists yet.
func (s *Store) LoadCorrection(modelNickname string) (CorrectionRow, error) {
	row := CorrectionRow{ModelNickname: modelNickname, AvgCorrection: 1.0}
	if s == nil {
		return row, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.QueryRow(
		"SELECT total_samples, sum_ratio, avg_correction FROM token_correction_factor WHERE model_nickname = ?",
		modelNickname,
	).Scan(&row.TotalSamples, &row.SumRatio, &row.AvgCorrection)
	if err != nil {
		return CorrectionRow{ModelNickname: modelNickname, AvgCorrection: 1.0}, nil
	}
	return row, nil
}

// SaveCorrection upserts a model's correction row. Callers must serialize
// updates per model (single writer); this call itself is not atomic
// read-modify-write across concurrent callers for the same model.
func (s *Store) SaveCorrection(row CorrectionRow) error {
	if s == nil {
		return nil
	}
	_, err := withBusyRetry(func() (struct{}, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, err := s.db.Exec(
			`INSERT INTO token_correction_factor (model_nickname, total_samples, sum_ratio, avg_correction, updated)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(model_nickname) DO UPDATE SET
			   total_samples = excluded.total_samples,
			   sum_ratio = excluded.sum_ratio,
			   avg_correction = excluded.avg_correction,
			   updated = excluded.updated`,
			row.ModelNickname, row.TotalSamples, row.SumRatio, row.AvgCorrection, time.Now().Unix(),
		)
		return struct{}{}, err
	})
	return err
}
