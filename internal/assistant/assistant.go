// Package assistant provides the AI auto-responder: a grounded prompt, the
// upstream completion client, the /api/gen HTTP surface and the widget-side
// client that consumes it.
package assistant

import "context"

// hotelContext grounds every completion. The model answers only from this
// block; anything outside it gets the hand-off line below.
const hotelContext = `
You are a helpful assistant for Oceanview Hotel in Miami Beach.
Hotel info:
- Hotel name: Oceanview Hotel
- Address: 123 Beach Ave, Miami Beach, FL
- Rooms: Standard ($120), Deluxe ($200), Suite ($350)
- Amenities: Pool, Spa, Free Wi-Fi
Answer questions ONLY based on this info.
If a question is outside this info, respond with: "I'm not sure, the admin will get back to you."
`

// fallbackReply is returned when the upstream completes without usable text.
const fallbackReply = "I'm not sure how to respond."

// Request is the /api/gen request body.
type Request struct {
	UserText string `json:"userText"`
	UserID   string `json:"userId"`
}

// Response is the /api/gen response body.
type Response struct {
	Text   string `json:"text"`
	UserID string `json:"userId"`
}

// Generator produces an assistant reply for one visitor message.
type Generator interface {
	Generate(ctx context.Context, userID, userText string) (string, error)
}
