// Package domain holds the core entities of the sending safety engine:
// sender accounts with their health and quota state, the append-only
// health event log, dispatch jobs with their items, and the activation
// (filler traffic) configuration and log.
//
// Types here carry no behavior beyond pure derivations (status from
// score, progress from item statuses). All mutation goes through the
// service and gate layers.
package domain
