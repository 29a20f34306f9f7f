package planner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const maxBindingMessage = 64

// bindingMessage renders the short text shown on the approval prompt. Only
// characters accepted by backchannel authorization servers are kept.
func bindingMessage(venue string) string {
	var b strings.Builder
	for _, r := range "Pathfinder: email " + venue {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			strings.ContainsRune(" +-_.,:#", r):
			b.WriteRune(r)
		}
	}
	msg := strings.TrimSpace(b.String())
	if len(msg) > maxBindingMessage {
		msg = strings.TrimSpace(msg[:maxBindingMessage])
	}
	return msg
}

// runConsent asks the caller to approve the email, polls until a terminal
// status or timeout and sends the draft to the venue on approval. Every
// outcome is reported; none is fatal.
func (st *SynthesisStage) runConsent(ctx context.Context, s *State, venue Venue) *ConsentOutcome {
	if s.Profile == nil || s.Profile.Email == "" {
		return &ConsentOutcome{Status: ApprovalError, Detail: "no email address on profile"}
	}
	to, detail := st.venueContact(ctx, venue)
	if to == "" {
		st.logger.Info("venue has no contact address, skipping consent",
			zap.String("venue_id", venue.VenueID),
			zap.String("detail", detail),
		)
		return &ConsentOutcome{Status: ApprovalError, Detail: detail}
	}

	requestID, err := st.consent.RequestApproval(ctx, s.Identity, bindingMessage(venue.Name))
	if err != nil {
		st.logger.Warn("consent request failed", zap.Error(err))
		return &ConsentOutcome{Status: ApprovalError, Detail: err.Error()}
	}
	outcome := &ConsentOutcome{RequestID: requestID}

	waitCtx, cancel := withCallTimeout(ctx, st.cfg.Consent.Timeout)
	defer cancel()
	interval := st.cfg.Consent.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := st.consent.PollApproval(waitCtx, requestID)
		if err != nil && waitCtx.Err() == nil {
			st.logger.Warn("consent poll failed", zap.String("request_id", requestID), zap.Error(err))
			outcome.Status, outcome.Detail = ApprovalError, err.Error()
			return outcome
		}
		switch status {
		case ApprovalApproved:
			outcome.Status = ApprovalApproved
			st.sendDraft(ctx, s, venue, to, outcome)
			return outcome
		case ApprovalRejected, ApprovalError:
			st.logger.Info("consent not granted", zap.String("status", string(status)))
			outcome.Status = status
			return outcome
		}

		select {
		case <-waitCtx.Done():
			st.logger.Info("consent timed out", zap.String("request_id", requestID))
			outcome.Status = ApprovalTimeout
			return outcome
		case <-ticker.C:
		}
	}
}

// venueContact returns the venue address, or "" and the reason it is unknown.
func (st *SynthesisStage) venueContact(ctx context.Context, venue Venue) (string, string) {
	if st.contacts == nil {
		return "", "venue contact lookup not configured"
	}
	callCtx, cancel := withCallTimeout(ctx, st.cfg.CallTimeout)
	defer cancel()
	addr, err := st.contacts.ContactEmail(callCtx, venue)
	if err != nil {
		st.logger.Warn("venue contact lookup failed", zap.String("venue_id", venue.VenueID), zap.Error(err))
		return "", "venue contact lookup failed: " + err.Error()
	}
	if addr = strings.TrimSpace(addr); addr == "" {
		return "", fmt.Sprintf("no contact email found for %s", firstNonEmpty(venue.Name, venue.VenueID))
	}
	return addr, ""
}

// sendDraft mails the venue from the caller's account; replies go to the caller.
func (st *SynthesisStage) sendDraft(ctx context.Context, s *State, venue Venue, to string, outcome *ConsentOutcome) {
	msg := EmailMessage{
		To:      to,
		ReplyTo: s.Profile.Email,
		Subject: fmt.Sprintf("Group availability at %s", venue.Name),
		Body:    s.EmailDraft,
	}
	if err := st.consent.SendEmail(ctx, s.Identity, msg); err != nil {
		st.logger.Warn("approved email failed to send", zap.Error(err))
		outcome.Detail = err.Error()
		return
	}
	outcome.Sent = true
}
