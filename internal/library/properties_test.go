package library_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/shelfstack/lending-go/internal/domain"
	"github.com/shelfstack/lending-go/internal/library"
	"github.com/shelfstack/lending-go/internal/storage/memory"
)

// For any sequence of lend and return calls the shelf count never goes
// below zero, never exceeds the initial stock, and outstanding loans plus
// shelf count always equal the initial stock.
func Test_LendReturn_QuantityInvariant(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initialQuantity := rapid.IntRange(0, 4).Draw(t, "initialQuantity")

		users := []uuid.UUID{knownUser, otherUser}

		book := someBook(initialQuantity)
		engine := memory.NewEngine()
		engine.Seed([]domain.Book{book}, []domain.Author{author}, []domain.Genre{genre}, nil)

		directory := &stubDirectory{known: map[uuid.UUID]bool{knownUser: true, otherUser: true}}
		service := library.NewService(engine, directory,
			library.WithClock(func() time.Time { return fixedNow }))

		ctx := context.Background()
		opCount := rapid.IntRange(0, 20).Draw(t, "opCount")

		for i := 0; i < opCount; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")

			if rapid.Bool().Draw(t, "lend") {
				err := service.Lend(ctx, book.ID, user)
				if err != nil {
					require.True(t, domain.IsValidationError(err), "unexpected lend error: %v", err)
				}
			} else {
				err := service.Return(ctx, book.ID, user)
				if err != nil {
					require.ErrorIs(t, err, domain.ErrNotFound, "unexpected return error: %v", err)
				}
			}

			uow, err := engine.Begin(ctx)
			require.NoError(t, err)

			current, err := uow.Books().First(ctx, library.BookByID(book.ID))
			require.NoError(t, err)

			outstanding, err := uow.Loans().Count(ctx, library.LoansForBook(book.ID))
			require.NoError(t, err)

			require.GreaterOrEqual(t, current.Quantity, 0)
			require.LessOrEqual(t, current.Quantity, initialQuantity)
			require.Equal(t, initialQuantity, current.Quantity+outstanding)
		}
	})
}
