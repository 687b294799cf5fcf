// Package scheduler triggers named jobs on cron expressions or fixed
// intervals. It never runs two instances of the same job at once.
package scheduler
