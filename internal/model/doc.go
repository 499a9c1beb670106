package model

// Package model defines domain data structures shared across the app: the
// immutable job descriptor, the job lifecycle phase, the fetch plan and the
// progress snapshot consumed by front ends.
