package featureflag

type Flag string

const (
	FlagDisableActualSizeRefine     Flag = "DISABLE_ACTUAL_SIZE_REFINE"
	FlagDisableLeastOverlapFallback Flag = "DISABLE_LEAST_OVERLAP_FALLBACK"
	FlagDisableBatchRevalidation    Flag = "DISABLE_BATCH_REVALIDATION"
)
