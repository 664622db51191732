package peer

// Ban scores for misbehaving nodes
const (
	// DefaultBanThreshold is the score at which a peer is disconnected and
	// reported as misbehaving.
	DefaultBanThreshold = 100

	BanScoreInvalidMerkleBlock = 100
	BanScoreInvalidHeaders     = 100
	BanScoreUnconnectedHeaders = 20
	BanScoreUnrequestedBlock   = 20
	BanScoreUnrequestedTx      = 10

	BanScoreMalformedMessage = 10
	BanScoreBadChecksum      = 10

	BanScoreNonVersionFirstMessage = 1
	BanScoreDuplicateVersion       = 1
	BanScoreDuplicateVerack        = 1

	BanScoreSentTooManyAddresses = 20

	BanScoreRejectedPublish = 5
	BanScoreStallTimeout    = 1
)
