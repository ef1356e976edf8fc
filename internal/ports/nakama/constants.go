package nakama

const (
	RpcCreateMatch = "truco_create_match"
	RpcGetState    = "truco_get_state"
	RpcPlayerView  = "truco_player_view"
	RpcListMatches = "truco_list_matches"
	RpcCallBid     = "truco_call_bid"
	RpcPlayCard    = "truco_play_card"
	RpcAccept      = "truco_accept"
	RpcReject      = "truco_reject"
	RpcFold        = "truco_fold"
	RpcReloadRules = "truco_reload_rules"

	// MatchNameTruco is the authoritative table handler name registered with Nakama.
	MatchNameTruco = "truco_table"
)

// Storage layout. Matches and roster records are system-owned unless noted.
const (
	matchCollection  = "truco_matches"
	rosterCollection = "truco_roster"
	rosterPlayerKey  = "player" // owned by the player's user id
)

// Runtime env keys read by InitModule.
const (
	envConfigPath  = "truco_config_path"
	envSeatSecret  = "truco_seat_secret"
	envRulesEngine = "truco_rules_engine"
	envAdminUsers  = "truco_admin_users"
)

// Op codes for table messages.
const (
	// Client -> Server
	OpCallBid  int64 = 1
	OpPlayCard int64 = 2
	OpAccept   int64 = 3
	OpReject   int64 = 4
	OpFold     int64 = 5
	OpSync     int64 = 6

	// Server -> Client
	OpEvent    int64 = 100
	OpSnapshot int64 = 101
	OpError    int64 = 102
)
