package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nowshin-108/capstone/internal/model"
)

func TestCreateDuplicateIsConflict(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(exact("INSERT INTO biddings")).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'F1-12A' for key 'PRIMARY'"})

	start := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	err = NewBiddingRepo(db).Create(context.Background(), &model.Bidding{
		BiddingID: "F1-12A", FlightID: "F1", PassengerID: 7, SeatNumber: "12A",
		StartTime: start, ExpirationTime: start.Add(time.Hour),
	})
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetLoadsBidsInOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	at := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	mock.ExpectQuery(exact("FROM biddings WHERE bidding_id = ?")).
		WithArgs("F1-12A").
		WillReturnRows(biddingRow("ACTIVE"))
	mock.ExpectQuery(exact("FROM bids WHERE bidding_id = ? ORDER BY created_at, seq")).
		WithArgs("F1-12A").
		WillReturnRows(sqlmock.NewRows([]string{"bid_id", "bidding_id", "flight_id", "bidder_id", "bidder_seat_number", "amount", "created_at"}).
			AddRow("b1", "F1-12A", "F1", 3, "9C", "50.00", at).
			AddRow("b2", "F1-12A", "F1", 4, "20D", "12.5", at.Add(time.Second)))

	b, err := NewBiddingRepo(db).Get(context.Background(), "F1-12A")
	require.NoError(t, err)
	assert.Equal(t, model.BiddingActive, b.Status)
	assert.Equal(t, uint64(7), b.PassengerID)
	require.Len(t, b.Bids, 2)
	assert.Equal(t, "b1", b.Bids[0].BidID)
	assert.True(t, decimal.RequireFromString("50").Equal(b.Bids[0].Amount))
	assert.Equal(t, uint64(4), b.Bids[1].BidderID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMissingIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(exact("FROM biddings WHERE bidding_id = ?")).
		WillReturnRows(sqlmock.NewRows([]string{"bidding_id"}))

	_, err = NewBiddingRepo(db).Get(context.Background(), "F1-12A")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddBidRequiresActiveBidding(t *testing.T) {
	bid := &model.Bid{
		BidID: "b1", BiddingID: "F1-12A", BidderID: 3, BidderSeatNumber: "9C",
		Amount: decimal.NewFromInt(50), Time: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
	}
	cases := []struct {
		name   string
		status *sqlmock.Rows
		want   error
	}{
		{"inactive", sqlmock.NewRows([]string{"status"}).AddRow("EXPIRED"), ErrInactive},
		{"missing", sqlmock.NewRows([]string{"status"}), ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectExec(exact("INSERT INTO bids")).
				WithArgs("b1", 3, "9C", sqlmock.AnyArg(), sqlmock.AnyArg(), "F1-12A").
				WillReturnResult(sqlmock.NewResult(0, 0))
			mock.ExpectQuery(exact("SELECT status FROM biddings WHERE bidding_id = ?")).
				WithArgs("F1-12A").
				WillReturnRows(tc.status)

			err = NewBiddingRepo(db).AddBid(context.Background(), bid)
			assert.ErrorIs(t, err, tc.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAddBidInserted(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(exact("INSERT INTO bids")).WillReturnResult(sqlmock.NewResult(0, 1))

	err = NewBiddingRepo(db).AddBid(context.Background(), &model.Bid{BidID: "b1", BiddingID: "F1-12A"})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteExpiredGuardsOnStatusAndTime(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2026, 5, 4, 14, 0, 0, 0, time.UTC)
	del := exact("DELETE FROM biddings WHERE bidding_id = ? AND status = 'ACTIVE' AND expiration_time <= ?")
	mock.ExpectExec(del).WithArgs("F1-12A", now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(del).WithArgs("F1-12A", now).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewBiddingRepo(db)
	deleted, err := repo.DeleteExpired(context.Background(), "F1-12A", now)
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = repo.DeleteExpired(context.Background(), "F1-12A", now)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOwnsSeatAndFlight(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(exact("SELECT COUNT(*) FROM passengers")).
		WithArgs("F1", 7, "12A").
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectQuery(exact("FROM flights WHERE flight_id = ?")).
		WithArgs("F1").
		WillReturnRows(sqlmock.NewRows([]string{"flight_id", "carrier_code", "flight_number", "scheduled_departure"}).
			AddRow("F1", "AA", "100", nil))

	owns, err := NewPassengerRepo(db).OwnsSeat(context.Background(), "F1", 7, "12A")
	require.NoError(t, err)
	assert.True(t, owns)

	f, err := NewFlightRepo(db).Flight(context.Background(), "F1")
	require.NoError(t, err)
	assert.Equal(t, "AA", f.CarrierCode)
	assert.True(t, f.ScheduledDeparture.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateNeedsDriverError(t *testing.T) {
	assert.True(t, isDuplicate(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.True(t, isDuplicate(fmt.Errorf("insert: %w", &mysql.MySQLError{Number: 1062})))
	assert.False(t, isDuplicate(&mysql.MySQLError{Number: 1406, Message: "Data too long for column 'seat_number' at row 1062"}))
	assert.False(t, isDuplicate(errors.New("row 1062 rejected")))
	assert.False(t, isDuplicate(nil))
}
