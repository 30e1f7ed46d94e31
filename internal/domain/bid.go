package domain

// BidRejectReason is the stable machine-readable code attached to a
// rejected bid.
type BidRejectReason string

const (
	RejectNone                BidRejectReason = ""
	RejectNoReservation       BidRejectReason = "NoReservation"
	RejectReservationInactive BidRejectReason = "ReservationInactive"
	RejectReservationExpired  BidRejectReason = "ReservationExpired"
	RejectExceedsReservation  BidRejectReason = "ExceedsReservation"
	RejectBelowMinimum        BidRejectReason = "BelowMinimum"
	RejectBidInFlight         BidRejectReason = "BidInFlight"
)

// BidDecision is the answer to a ValidateBid call. MaxAllowedBid is filled
// whenever a reservation was found, so clients can size a retry.
type BidDecision struct {
	Accepted      bool
	Reason        BidRejectReason
	Message       string
	MaxAllowedBid float64
}
