// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package run performs import runs.

🎯 Purpose:
- Coordinates the PID file lock, file resolution and the CSV import
- Tracks every file of a run in a registry (Context)
- Archives imported files and records the run

🔄 Flow:
 1. Lock the PID file with the run serial
 2. Resolve the cleared files of each subject (consumes OK files)
 3. Claim each file by renaming it to <name>.in_progress
 4. Import it and rename it to <name>.imported or <name>.failed
 5. Stop at the first failure
 6. Move imported files to <archive_dir>/<serial>/
 7. Record the run and release the lock

🤝 Interfaces:
- Processor: imports one claimed file (csvimport.Importer)
- Recorder: stores the run outcome (store.Store)
- Operation: anything Trigger can fire (Runner)

🔍 Example:

	runner, err := run.New(run.Options{Config: cfg, Files: fsys.NewOs(), Processor: importer})
	if err != nil {
		return err
	}
	rc, err := runner.Run(ctx)
*/
package run
