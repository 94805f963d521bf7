package featureflag

type Flag string

const (
	FlagDisableHorizonCulling Flag = "DISABLE_HORIZON_CULLING"
	FlagDisablePointBudget    Flag = "DISABLE_POINT_BUDGET"
	FlagDisableFrameDiff      Flag = "DISABLE_FRAME_DIFF"
	FlagDisableOverlayGuard   Flag = "DISABLE_OVERLAY_GUARD"
	FlagFreezeUpdate          Flag = "FREEZE_UPDATE"
)
