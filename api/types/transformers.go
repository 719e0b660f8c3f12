package types

import "github.com/killallgit/voxlog/internal/models"

// ToSessionSummary builds the list view of a session
func ToSessionSummary(s *models.Session) SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Name:         s.IntelligibleName,
		State:        string(s.State),
		ChatID:       s.ChatID,
		AudioCount:   len(s.AudioEntries),
		ErrorCount:   len(s.Errors),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity(),
	}
}

// ToSessionSummaries transforms a list of sessions
func ToSessionSummaries(list []*models.Session) []SessionSummary {
	result := make([]SessionSummary, 0, len(list))
	for _, s := range list {
		if s != nil {
			result = append(result, ToSessionSummary(s))
		}
	}
	return result
}

// ToSessionDetail builds the full view of a session
func ToSessionDetail(s *models.Session) *SessionDetail {
	if s == nil {
		return nil
	}

	ok, failed, pending := s.TranscriptionCounts()
	detail := &SessionDetail{
		SessionSummary:   ToSessionSummary(s),
		InterruptedFrom:  string(s.InterruptedFrom),
		Provider:         s.Provider,
		ProcessingOutput: s.ProcessingOutput,
		Transcribed:      ok,
		Failed:           failed,
		Pending:          pending,
		DurationSeconds:  s.TotalDuration().Seconds(),
		Audio:            make([]AudioSummary, 0, len(s.AudioEntries)),
		Errors:           make([]ErrorSummary, 0, len(s.Errors)),
	}

	for _, a := range s.AudioEntries {
		detail.Audio = append(detail.Audio, AudioSummary{
			Sequence:            a.Sequence,
			ReceivedAt:          a.ReceivedAt,
			Filename:            a.LocalFilename,
			SizeBytes:           a.FileSizeBytes,
			DurationSeconds:     a.DurationSeconds,
			TranscriptionStatus: string(a.TranscriptionStatus),
			TranscriptFilename:  a.TranscriptFilename,
		})
	}
	for _, e := range s.Errors {
		detail.Errors = append(detail.Errors, ErrorSummary{
			Timestamp:   e.Timestamp,
			Operation:   e.Operation,
			Target:      e.Target,
			Message:     e.Message,
			Recoverable: e.Recoverable,
		})
	}
	return detail
}
