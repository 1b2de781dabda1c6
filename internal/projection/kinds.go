package projection

// Event tags per contract. Each contract's set is closed: a tag outside it is
// counted as unknown and otherwise ignored.

// RegistryEvent is an agent-registry event tag.
type RegistryEvent string

const (
	AgentRegistered RegistryEvent = "agent-registered"
	StatusChanged   RegistryEvent = "status-changed"
)

// TaskBoardEvent is a task-board event tag.
type TaskBoardEvent string

const (
	TaskPosted    TaskBoardEvent = "task-posted"
	BidPlaced     TaskBoardEvent = "bid-placed"
	TaskAssign    TaskBoardEvent = "task-assigned"
	WorkSubmitted TaskBoardEvent = "work-submitted"
	TaskApproved  TaskBoardEvent = "task-approved"
	TaskDispute   TaskBoardEvent = "task-disputed"
	TaskCancel    TaskBoardEvent = "task-cancelled"
	TaskExpire    TaskBoardEvent = "task-expired"
)

// taskStatusFor maps the status-setting task-board events to the status they set.
var taskStatusFor = map[TaskBoardEvent]TaskStatus{
	TaskAssign:    TaskAssigned,
	WorkSubmitted: TaskSubmitted,
	TaskApproved:  TaskCompleted,
	TaskDispute:   TaskDisputed,
	TaskCancel:    TaskCancelled,
	TaskExpire:    TaskExpired,
}

// VaultEvent is an agent-vault event tag.
type VaultEvent string

const VaultCreated VaultEvent = "vault-created"

// ReputationEvent is a reputation event tag.
type ReputationEvent string

const (
	TaskCompletedRecorded ReputationEvent = "task-completed-recorded"
	AgentRated            ReputationEvent = "agent-rated"
	AgentEndorsed         ReputationEvent = "agent-endorsed"
	DisputeRecorded       ReputationEvent = "dispute-recorded"
)

// LaunchpadEvent is an agent-launchpad event tag.
type LaunchpadEvent string

const (
	CurveLaunched  LaunchpadEvent = "curve-launched"
	TokenBought    LaunchpadEvent = "token-bought"
	TokenSold      LaunchpadEvent = "token-sold"
	CurveGraduated LaunchpadEvent = "curve-graduated"
)
