// Package scene stores named lighting scenes and activates them.
//
// A scene is an ordered list of actions, each a partial light state for
// one catalogued device. Activation writes every action through the
// reconciler, so scene writes follow the same write-then-merge path as a
// direct state change and surface on the event bus the same way.
//
//	Registry (cache) ──▶ Repository (SQLite: scenes, scene_executions)
//	    │
//	    ▼
//	Engine.Activate
//	  1. load the scene from the cache, refuse if disabled
//	  2. split actions into groups on the Parallel flag
//	  3. run each group concurrently, groups in order
//	  4. stop after a failure unless the action continues on error
//	  5. store the execution record and broadcast the result
package scene
