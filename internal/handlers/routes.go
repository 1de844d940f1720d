package handlers

import "github.com/gin-gonic/gin"

// Register mounts every endpoint on the /api/v1 group.
func Register(api *gin.RouterGroup, jobs *JobHandler, apps *ApplicationHandler, students *StudentHandler) {
	api.GET("/health", HealthCheck)

	// Job Routes
	api.POST("/jobs", jobs.CreateJob)
	api.GET("/jobs", jobs.ListJobs)
	api.GET("/jobs/:id", jobs.GetJob)
	api.POST("/jobs/:id/activate", jobs.Activate)
	api.POST("/jobs/:id/deactivate", jobs.Deactivate)

	st := api.Group("/students/:studentID")
	st.PATCH("", students.UpdateProfile)
	st.GET("/cvs/:cvID", students.GetCV)
	st.PUT("/cvs/:cvID/active", students.ActivateCV)
	st.GET("/matches", students.ListMatches)
	st.GET("/matches/:jobID", students.GetMatch)

	st.POST("/applications", apps.Submit)
	st.GET("/applications", apps.List)
	st.GET("/applications/:id", apps.Get)
	st.DELETE("/applications/:id", apps.Withdraw)
	st.GET("/quota", apps.Quota)
}
