package protocol

import "strconv"

// BannerKey is the media key of the study banner image.
const BannerKey = "banner"

// MediaKey identifies a media question's source across the study. Question
// ids are only unique within a module, so the module index is part of the key.
func MediaKey(moduleIndex int, questionID string) string {
	return strconv.Itoa(moduleIndex) + "/" + questionID
}

// ThumbKey is the media key of a video question's thumbnail.
func ThumbKey(moduleIndex int, questionID string) string {
	return MediaKey(moduleIndex, questionID) + ":thumb"
}

// MediaURLs maps media keys to the remote URLs that should be pre-cached:
// the banner, every media question source and video thumbnails.
func (s *Study) MediaURLs() map[string]string {
	urls := map[string]string{}
	if s.Properties.BannerURL != "" {
		urls[BannerKey] = s.Properties.BannerURL
	}
	for mi, m := range s.Modules {
		for _, section := range m.Sections {
			for _, q := range section.Questions {
				media, ok := q.(*Media)
				if !ok {
					continue
				}
				if media.Src != "" {
					urls[MediaKey(mi, media.ID)] = media.Src
				}
				if media.Subtype == "video" && media.Thumb != "" {
					urls[ThumbKey(mi, media.ID)] = media.Thumb
				}
			}
		}
	}
	return urls
}

// WithLocalMedia returns a copy of the study whose media URLs point at the
// cached local copies. Keys missing from local keep their remote URL.
func (s *Study) WithLocalMedia(local map[string]string) (*Study, error) {
	out, err := s.Clone()
	if err != nil {
		return nil, err
	}
	if u, ok := local[BannerKey]; ok {
		out.Properties.BannerURL = u
	}
	for mi := range out.Modules {
		for si := range out.Modules[mi].Sections {
			for _, q := range out.Modules[mi].Sections[si].Questions {
				media, ok := q.(*Media)
				if !ok {
					continue
				}
				if u, ok := local[MediaKey(mi, media.ID)]; ok {
					media.Src = u
				}
				if u, ok := local[ThumbKey(mi, media.ID)]; ok {
					media.Thumb = u
				}
			}
		}
	}
	return out, nil
}
