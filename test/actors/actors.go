package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"marketflow/assessment"
	"marketflow/auth"
	"marketflow/chat"
)

var reviewTargets = []assessment.Status{
	assessment.StatusWaitingForSample,
	assessment.StatusPendingPhysicalReview,
	assessment.StatusVerified,
	assessment.StatusForRevision,
	assessment.StatusRejected,
}

func pause(base, jitter int) {
	time.Sleep(time.Duration(base+rand.Intn(jitter)) * time.Millisecond)
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-ctx.Done():
		return true
	case <-stop:
		return true
	default:
		return false
	}
}

// Reviewer moves random products to random review states. Failures from
// killed connections are expected and ignored; the oracles judge the outcome.
func Reviewer(ctx context.Context, svc *assessment.Service, productIDs []string, adminID string, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		productID := productIDs[rand.Intn(len(productIDs))]
		target := reviewTargets[rand.Intn(len(reviewTargets))]
		_, _ = svc.Transition(ctx, productID, target, assessment.Metadata{
			Reason:    fmt.Sprintf("stress %s", target),
			Logistics: "courier pickup",
			ActorID:   adminID,
		})
		pause(5, 20)
	}
	return nil
}

// Resubmitter opens fresh assessments, racing the reviewers for the latest row.
func Resubmitter(ctx context.Context, svc *assessment.Service, productIDs []string, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		_, _ = svc.Submit(ctx, productIDs[rand.Intn(len(productIDs))])
		pause(40, 80)
	}
	return nil
}

// Chatter sends messages from a random side of the conversation.
func Chatter(ctx context.Context, svc *chat.Service, conv chat.Conversation, stop <-chan struct{}) error {
	for i := 0; !stopped(ctx, stop); i++ {
		params := chat.SendParams{ConversationID: conv.ID, SenderID: conv.BuyerID, SenderRole: auth.RoleBuyer, Text: fmt.Sprintf("buyer says %d", i)}
		if rand.Intn(2) == 0 {
			params.SenderID, params.SenderRole, params.Text = conv.SellerID, auth.RoleSeller, fmt.Sprintf("seller says %d", i)
		}
		if rand.Intn(8) == 0 {
			image := "https://cdn.example.com/p.jpg"
			params.Text, params.ImageURL = "", &image
		}
		_, _ = svc.Send(ctx, params)
		pause(5, 15)
	}
	return nil
}

// Reader marks the conversation read for a random side.
func Reader(ctx context.Context, svc *chat.Service, conv chat.Conversation, stop <-chan struct{}) error {
	for !stopped(ctx, stop) {
		if rand.Intn(2) == 0 {
			_, _ = svc.MarkRead(ctx, conv.ID, conv.BuyerID, auth.RoleBuyer)
		} else {
			_, _ = svc.MarkRead(ctx, conv.ID, conv.SellerID, auth.RoleSeller)
		}
		pause(15, 30)
	}
	return nil
}
