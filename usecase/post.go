package usecase

import (
	"net/url"
	"path"
	"strings"

	domainPublisher "github.com/AzielCF/az-postsync/domains/publisher"
	domainSchedule "github.com/AzielCF/az-postsync/domains/schedule"
)

var videoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

func buildPost(account domainSchedule.AccountConnection, draft domainSchedule.Draft) domainPublisher.Post {
	post := domainPublisher.Post{
		AccountID:   account.AccountID,
		AccessToken: account.AccessToken,
		Caption:     draft.FullCaption(),
	}
	for _, m := range draft.Media {
		post.Media = append(post.Media, domainPublisher.MediaItem{URL: m.URL, Kind: mediaKind(m)})
	}
	return post
}

// mediaKind trusts an explicit type and falls back to the URL extension.
func mediaKind(m domainSchedule.Media) domainPublisher.MediaKind {
	switch strings.ToLower(m.Type) {
	case "video":
		return domainPublisher.MediaVideo
	case "image":
		return domainPublisher.MediaImage
	}
	p := m.URL
	if u, err := url.Parse(m.URL); err == nil {
		p = u.Path
	}
	if videoExtensions[strings.ToLower(path.Ext(p))] {
		return domainPublisher.MediaVideo
	}
	return domainPublisher.MediaImage
}
