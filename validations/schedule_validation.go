package validations

import (
	"context"
	"fmt"
	"strings"

	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
	pkgError "github.com/AzielCF/az-postsync/pkg/error"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	MaxCaptionLength = 2200
	MaxHashtags      = 30
	MaxCarouselItems = 10
)

func ValidateRunRequest(ctx context.Context, request domainReconcile.RunRequest) error {
	err := validation.ValidateStructWithContext(ctx, &request,
		validation.Field(&request.Trigger, validation.In(domainReconcile.TriggerPeriodic, domainReconcile.TriggerManual)),
		validation.Field(&request.SlotIDs, validation.Each(validation.Required, validation.Length(1, 128))),
	)

	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	return nil
}

// ValidatePublishable checks a draft against the platform limits before any
// remote call is made.
func ValidatePublishable(ctx context.Context, draft domainSchedule.Draft) error {
	caption := draft.FullCaption()
	err := validation.ValidateStructWithContext(ctx, &draft,
		validation.Field(&draft.Media,
			validation.Required.Error("draft has no media"),
			validation.Length(1, MaxCarouselItems).Error(fmt.Sprintf("a post carries between 1 and %d media items", MaxCarouselItems)),
			validation.Each(validation.By(validateMedia)),
		),
	)
	if err != nil {
		return pkgError.ValidationError(err.Error())
	}

	if n := len([]rune(caption)); n > MaxCaptionLength {
		return pkgError.ValidationError(fmt.Sprintf("caption: %d characters exceeds the limit of %d", n, MaxCaptionLength))
	}
	if n := draft.HashtagCount(); n > MaxHashtags {
		return pkgError.ValidationError(fmt.Sprintf("caption: %d hashtags exceeds the limit of %d", n, MaxHashtags))
	}
	return nil
}

func validateMedia(value interface{}) error {
	m, ok := value.(domainSchedule.Media)
	if !ok {
		return fmt.Errorf("unexpected media value %T", value)
	}
	return validation.ValidateStruct(&m,
		validation.Field(&m.URL, validation.Required, is.URL, validation.By(httpScheme)),
		validation.Field(&m.Type, validation.In("image", "video")),
	)
}

func httpScheme(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	if !strings.HasPrefix(s, "https://") && !strings.HasPrefix(s, "http://") {
		return fmt.Errorf("must be an http(s) URL")
	}
	return nil
}
