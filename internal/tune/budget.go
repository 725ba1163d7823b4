package tune

// minEarlyStopping is the floor applied to derived early-stopping limits.
const minEarlyStopping = 10

// Budget is the trial allowance of one tool invocation.
type Budget struct {
	Trials        int
	EarlyStopping int
}

// EarlyStoppingArmed reports whether the search may end before Trials.
func (b Budget) EarlyStoppingArmed() bool {
	return b.EarlyStopping < b.Trials
}

// GlobalBudget is the allowance of an unpartitioned run.
func GlobalBudget(trials, earlyStopping int) Budget {
	if earlyStopping <= 0 {
		earlyStopping = max(trials, minEarlyStopping)
	}
	return Budget{Trials: trials, EarlyStopping: earlyStopping}
}

// SplitBudget divides trials across numTasks tasks. A positive
// trialsSingle or earlyStopping overrides the derived value. The per-task
// share truncates and is never below one trial.
func SplitBudget(trials, numTasks, trialsSingle, earlyStopping int) Budget {
	single := trialsSingle
	if single <= 0 {
		single = 1
		if numTasks > 0 {
			single = max(1, trials/numTasks)
		}
	}
	if earlyStopping <= 0 {
		earlyStopping = max(single, minEarlyStopping)
	}
	return Budget{Trials: single, EarlyStopping: earlyStopping}
}
