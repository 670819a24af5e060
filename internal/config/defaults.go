package config

const (
	defaultDataDir                = "~/.local/share/tmcore"
	defaultLogDir                 = "~/.local/share/tmcore/logs"
	defaultTMDatabase             = "tm.db"
	defaultSnapshotDatabase       = "snapshots.db"
	defaultBusyTimeoutMS          = 5000
	defaultTMStoreID              = "local"
	defaultTMAccess               = "readwrite"
	defaultTMPartitioning         = "job"
	defaultSnapshotStoreID        = "default"
	defaultSyncConcurrency        = 4
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	defaultGrandfatherID          = "Grandfather"
	defaultGrandfatherQuality     = 70
	defaultRepetitionID           = "Repetition"
	defaultRepetitionQualified    = 0
	defaultRepetitionUnqualified  = 10
	defaultRepetitionNotesPenalty = 5
	defaultRepetitionGroupPenalty = 5
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	gfQuality := defaultGrandfatherQuality
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Storage: Storage{
			TMDatabase:       defaultTMDatabase,
			SnapshotDatabase: defaultSnapshotDatabase,
			BusyTimeoutMS:    defaultBusyTimeoutMS,
		},
		TM: TM{
			StoreID:      defaultTMStoreID,
			Access:       defaultTMAccess,
			Partitioning: defaultTMPartitioning,
		},
		Snapshot: Snapshot{
			StoreID: defaultSnapshotStoreID,
		},
		Sync: Sync{
			Concurrency: defaultSyncConcurrency,
		},
		Grandfather: Grandfather{
			Provider: Provider{
				ID:      defaultGrandfatherID,
				Quality: &gfQuality,
			},
		},
		Repetition: Repetition{
			Provider: Provider{
				ID:      defaultRepetitionID,
				Enabled: true,
			},
			QualifiedPenalty:     defaultRepetitionQualified,
			UnqualifiedPenalty:   defaultRepetitionUnqualified,
			NotesMismatchPenalty: defaultRepetitionNotesPenalty,
			GroupPenalty:         defaultRepetitionGroupPenalty,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
