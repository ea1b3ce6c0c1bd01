package handlers

import "github.com/go-chi/chi/v5"

func (s *TaskHandler) Routes(r chi.Router) {
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.ListTasks)  // GET /tasks
		r.Post("/", s.PostTask) // POST /tasks

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetTask)
			r.Patch("/", s.UpdateTask)
			r.Delete("/", s.DeleteTask)

			r.Post("/start", s.StartTask)
			r.Post("/pause", s.PauseTask)
			r.Post("/resume", s.ResumeTask)
			r.Post("/complete", s.CompleteTask)
			r.Post("/reschedule", s.RescheduleTask)

			r.Get("/timing", s.GetTiming)
			r.Get("/events", s.GetEvents)
			r.Get("/log", s.GetLog)
		})
	})

	r.Route("/geofences", func(r chi.Router) {
		r.Get("/", s.ListGeofences)
		r.Post("/", s.PostGeofence)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetGeofence)
			r.Put("/", s.UpdateGeofence)
			r.Post("/deactivate", s.DeactivateGeofence)
		})
	})

	r.Route("/workers/{worker}", func(r chi.Router) {
		r.Post("/positions", s.PostPosition) // POST /workers/{worker}/positions
		r.Post("/route", s.PostRoute)        // POST /workers/{worker}/route
	})
	r.Post("/routes", s.PostRoutes)

	r.Post("/admin/forward", s.PostForward)

	r.Get("/health", s.HealthCheck)
}
