package stats

/*
This file defines all the metrics being collected.   As new metrics are added please follow this pattern.
*/

const (
	/************************* Syncer metrics **************************/
	/*
		amount of time spent initializing, fetching and checking out one repository entry
	*/
	SyncerFetchLatency_ms = "fetchLatency_ms"

	/*
		amount of time spent copying one entry's tracked files into the archive
	*/
	SyncerExportLatency_ms = "exportLatency_ms"

	/*
		end to end time to sync one repository entry (includes skips and failures)
	*/
	SyncerSyncLatency_ms = "syncLatency_ms"

	/*
		number of entries whose commit was snapshotted into the archive
	*/
	SyncerOkCounter = "syncOkCounter"

	/*
		number of entries skipped because their commit was already captured
	*/
	SyncerSkippedCounter = "syncSkippedCounter"

	/*
		number of entries that failed to sync
	*/
	SyncerErrCounter = "syncErrCounter"

	/*
		number of completed snapshots whose marker file could not be written
	*/
	SyncerMarkerErrCounter = "markerErrCounter"

	/*
		number of scratch checkout dirs that could not be removed
	*/
	SyncerCleanupErrCounter = "cleanupErrCounter"

	/************************* Run coordinator metrics **************************/
	/*
		end to end time for one sync run over the whole config
	*/
	RunnerRunLatency_ms = "runLatency_ms"

	/*
		disk usage growth (in kb) of the archive root over one sync run
	*/
	ArchiveDirUsageKb = "archiveDirUsage_kb"

	/*
		number of repository entries in the loaded config
	*/
	RunnerEntriesGauge = "entriesGauge"
)
