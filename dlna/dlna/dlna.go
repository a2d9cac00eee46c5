// Package dlna holds the handful of DLNA-specific HTTP header names and
// values the streaming endpoint must emit (spec §4.6.4), distilled from the
// teacher's own dlna.TransferModeDomain/ContentFeaturesDomain constants and
// ContentFeatures struct in dlna/dms/dms.go's imports. Time-seek / transcode
// profile negotiation (dlna.NPTRange, dlna.ContentFeatures.SupportTimeSeek)
// is dropped: this server never transcodes (spec Non-goals), so only the
// fixed contentFeatures string spec §4.6.4 prescribes is needed.
package dlna

const (
	// TransferModeDomain is the header announcing whether a resource
	// streams continuously (video/audio) or loads in the background
	// (images), spec §4.6.4.
	TransferModeDomain = "transferMode.dlna.org"
	// ContentFeaturesDomain is the header carrying DLNA.ORG_* flags.
	ContentFeaturesDomain = "contentFeatures.dlna.org"

	// TransferModeStreaming is used for video/audio resources.
	TransferModeStreaming = "Streaming"
	// TransferModeBackground is used for image resources.
	TransferModeBackground = "Background"

	// ContentFeaturesDefault is the fixed, no-profile-negotiation value
	// spec §4.6.4 requires on every media response.
	ContentFeaturesDefault = "DLNA.ORG_OP=01;DLNA.ORG_CI=0;DLNA.ORG_FLAGS=01700000000000000000000000000000"
)
