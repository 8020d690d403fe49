package model

// SeatSwap describes an accepted bid: the initiator of BiddingID gives
// InitiatorSeat to BidderID and receives BidderSeat.
type SeatSwap struct {
	BiddingID     string
	FlightID      string
	InitiatorID   uint64
	InitiatorSeat string
	BidderID      uint64
	BidderSeat    string
}

// Seats returns both seat numbers involved in the swap.
func (s SeatSwap) Seats() []string {
	return []string{s.InitiatorSeat, s.BidderSeat}
}

// SwapResult lists the auction state purged by a seat swap.
type SwapResult struct {
	RemovedBiddingIDs []string
	RemovedBidIDs     []string
}
