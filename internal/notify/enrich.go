package notify

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/shelfstack/lending-go/internal/directory"
	"github.com/shelfstack/lending-go/internal/domain"
)

const (
	logMsgPageFetchFailed = "fetching directory page failed"
	logAttrPage           = "page"
)

// enrich resolves each debtor's email and display name against the
// identity directory. The directory only supports paged listing, so all
// pages are fetched in parallel and matched against the debtor set; each
// fetch fills its own slot and a single sequential pass merges them.
//
// A failing page drops only the debtors on that page. A failing count
// call aborts the whole batch; no email is sent on partial knowledge of
// the directory size.
func (s *Scheduler) enrich(
	ctx context.Context,
	notifications []domain.DebtorNotification,
) ([]domain.DebtorNotification, error) {

	total, err := s.directory.GetUserCount(ctx)
	if err != nil {
		return nil, err
	}

	wanted := make(map[uuid.UUID]struct{}, len(notifications))
	for _, notification := range notifications {
		wanted[notification.UserID] = struct{}{}
	}

	pageCount := (total + s.pageSize - 1) / s.pageSize
	pages := make([][]directory.User, pageCount)

	group, groupCtx := errgroup.WithContext(ctx)

	for page := 0; page < pageCount; page++ {
		group.Go(func() error {
			users, listErr := s.directory.ListUsers(groupCtx, page*s.pageSize, s.pageSize)
			if listErr != nil {
				s.logError(logMsgPageFetchFailed, logAttrPage, page, logAttrError, listErr.Error())
				return nil
			}

			matched := make([]directory.User, 0)
			for _, user := range users {
				if _, need := wanted[user.ID]; need {
					matched = append(matched, user)
				}
			}

			pages[page] = matched

			return nil
		})
	}

	_ = group.Wait()

	resolved := make(map[uuid.UUID]directory.User, len(notifications))
	for _, page := range pages {
		for _, user := range page {
			resolved[user.ID] = user
		}
	}

	enriched := make([]domain.DebtorNotification, 0, len(notifications))

	for _, notification := range notifications {
		user, found := resolved[notification.UserID]
		if !found {
			continue
		}

		notification.Email = user.Email
		notification.Name = user.FullName()
		enriched = append(enriched, notification)
	}

	return enriched, nil
}
